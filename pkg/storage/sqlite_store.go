package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by every method called before Init.
var ErrNotInitialized = errors.New("store not initialized")

// Store wraps an embedded SQLite database holding the moderation case ledger,
// member role snapshots and runtime markers. It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA foreign_keys=ON;`, "enable FKs"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// CaseRecord is one completed moderation action.
type CaseRecord struct {
	CaseID        string    `json:"case_id"`
	GuildID       string    `json:"guild_id"`
	Kind          string    `json:"kind"`
	TargetID      string    `json:"target_id"`
	TargetName    string    `json:"target_name"`
	ModeratorID   string    `json:"moderator_id"`
	ModeratorName string    `json:"moderator_name"`
	Reason        string    `json:"reason"`
	Duration      string    `json:"duration,omitempty"`
	ChannelID     string    `json:"channel_id,omitempty"`
	MessageLink   string    `json:"message_link,omitempty"`
	EvidenceURLs  []string  `json:"evidence_urls,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// InsertCase appends a case. Case IDs are unique; a duplicate insert is an error.
func (s *Store) InsertCase(ctx context.Context, c CaseRecord) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if c.CaseID == "" || c.GuildID == "" || c.TargetID == "" {
		return fmt.Errorf("insert case: case_id, guild_id and target_id are required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_cases (case_id, guild_id, kind, target_id, target_name, moderator_id, moderator_name, reason, duration, channel_id, message_link, evidence, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CaseID, c.GuildID, c.Kind, c.TargetID, c.TargetName, c.ModeratorID, c.ModeratorName,
		c.Reason, c.Duration, c.ChannelID, c.MessageLink, strings.Join(c.EvidenceURLs, "\n"), c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert case %s: %w", c.CaseID, err)
	}
	return nil
}

// ListCasesForUser returns the newest cases for a target in a guild, newest first.
// A non-positive limit defaults to 10.
func (s *Store) ListCasesForUser(ctx context.Context, guildID, userID string, limit int) ([]CaseRecord, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT case_id, guild_id, kind, target_id, target_name, moderator_id, moderator_name, reason, duration, channel_id, message_link, evidence, created_at
         FROM moderation_cases WHERE target_id=?`
	args := []any{userID}
	if guildID != "" {
		query += ` AND guild_id=?`
		args = append(args, guildID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CaseRecord
	for rows.Next() {
		var c CaseRecord
		var evidence string
		if err := rows.Scan(&c.CaseID, &c.GuildID, &c.Kind, &c.TargetID, &c.TargetName, &c.ModeratorID,
			&c.ModeratorName, &c.Reason, &c.Duration, &c.ChannelID, &c.MessageLink, &evidence, &c.CreatedAt); err != nil {
			return nil, err
		}
		if evidence != "" {
			c.EvidenceURLs = strings.Split(evidence, "\n")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCasesByKind returns the number of cases per kind in a guild.
func (s *Store) CountCasesByKind(ctx context.Context, guildID string) (map[string]int, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM moderation_cases WHERE guild_id=? GROUP BY kind`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// SetHeartbeat records the last-known "bot is running" timestamp.
func (s *Store) SetHeartbeat(t time.Time) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		"heartbeat", t.UTC(),
	)
	return err
}

// GetHeartbeat returns the last recorded heartbeat timestamp, if any.
func (s *Store) GetHeartbeat() (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, ErrNotInitialized
	}
	row := s.db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, "heartbeat")
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// UpsertMemberRoles replaces the snapshot of a member's role IDs atomically.
func (s *Store) UpsertMemberRoles(guildID, userID string, roles []string, updatedAt time.Time) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	if guildID == "" || userID == "" {
		return nil
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM roles_current WHERE guild_id=? AND user_id=?`, guildID, userID); err != nil {
		return err
	}
	for _, rid := range roles {
		if rid == "" {
			continue
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO roles_current (guild_id, user_id, role_id, updated_at) VALUES (?, ?, ?, ?)`,
			guildID, userID, rid, updatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetMemberRoles returns the role snapshot for a member; ok is false when none was stored.
func (s *Store) GetMemberRoles(guildID, userID string) (roles []string, ok bool, err error) {
	if s.db == nil {
		return nil, false, ErrNotInitialized
	}
	rows, err := s.db.Query(`SELECT role_id FROM roles_current WHERE guild_id=? AND user_id=?`, guildID, userID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, false, err
		}
		roles = append(roles, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return roles, len(roles) > 0, nil
}

// ensureSchema creates required tables and indexes if they don't exist.
func ensureSchema(db *sql.DB) error {
	const createCases = `
CREATE TABLE IF NOT EXISTS moderation_cases (
  case_id        TEXT PRIMARY KEY,
  guild_id       TEXT NOT NULL,
  kind           TEXT NOT NULL,
  target_id      TEXT NOT NULL,
  target_name    TEXT,
  moderator_id   TEXT,
  moderator_name TEXT,
  reason         TEXT,
  duration       TEXT,
  channel_id     TEXT,
  message_link   TEXT,
  evidence       TEXT,
  created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_target ON moderation_cases(guild_id, target_id, created_at);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  TIMESTAMP NOT NULL
);`

	const createRolesCurrent = `
CREATE TABLE IF NOT EXISTS roles_current (
  guild_id   TEXT NOT NULL,
  user_id    TEXT NOT NULL,
  role_id    TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  PRIMARY KEY (guild_id, user_id, role_id)
);
CREATE INDEX IF NOT EXISTS idx_roles_current_member ON roles_current(guild_id, user_id);`

	for _, sqlText := range []string{createCases, createRuntimeMeta, createRolesCurrent} {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
