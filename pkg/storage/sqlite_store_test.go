package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewStore(dbPath)
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSchemaInitialized(t *testing.T) {
	store := newTempStore(t)
	rows, err := store.db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	defer rows.Close()

	required := map[string]bool{
		"moderation_cases": false,
		"runtime_meta":     false,
		"roles_current":    false,
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, ok := required[name]; ok {
			required[name] = true
		}
	}
	for k, ok := range required {
		if !ok {
			t.Fatalf("expected table %s to exist", k)
		}
	}
}

func TestUninitializedStoreErrors(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "x.db"))
	if err := s.InsertCase(context.Background(), CaseRecord{CaseID: "a", GuildID: "g", TargetID: "u"}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, _, err := s.GetHeartbeat(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestCasesRoundTripNewestFirst(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, kind := range []string{"ban", "kick", "timeout"} {
		rec := CaseRecord{
			CaseID:       kind + "-case",
			GuildID:      "g1",
			Kind:         kind,
			TargetID:     "u1",
			ModeratorID:  "m1",
			Reason:       "reason " + kind,
			EvidenceURLs: []string{"https://a/" + kind, "https://b/" + kind},
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.InsertCase(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", kind, err)
		}
	}
	if err := store.InsertCase(ctx, CaseRecord{CaseID: "other", GuildID: "g2", Kind: "ban", TargetID: "u1", CreatedAt: base}); err != nil {
		t.Fatalf("insert other guild: %v", err)
	}

	got, err := store.ListCasesForUser(ctx, "g1", "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(got))
	}
	if got[0].Kind != "timeout" || got[1].Kind != "kick" {
		t.Fatalf("unexpected order: %s, %s", got[0].Kind, got[1].Kind)
	}
	if len(got[0].EvidenceURLs) != 2 || got[0].EvidenceURLs[1] != "https://b/timeout" {
		t.Fatalf("evidence not preserved: %#v", got[0].EvidenceURLs)
	}

	all, err := store.ListCasesForUser(ctx, "", "u1", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 cases across guilds, got %d", len(all))
	}

	counts, err := store.CountCasesByKind(ctx, "g1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["ban"] != 1 || counts["kick"] != 1 || counts["timeout"] != 1 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}

func TestInsertCaseRejectsDuplicateAndIncomplete(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	rec := CaseRecord{CaseID: "dup", GuildID: "g", Kind: "kick", TargetID: "u"}
	if err := store.InsertCase(ctx, rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := store.InsertCase(ctx, rec); err == nil {
		t.Fatalf("expected duplicate case id to fail")
	}
	if err := store.InsertCase(ctx, CaseRecord{CaseID: "x", GuildID: "g"}); err == nil {
		t.Fatalf("expected missing target to fail")
	}
}

func TestMemberRolesSnapshot(t *testing.T) {
	store := newTempStore(t)
	if _, ok, err := store.GetMemberRoles("g", "u"); err != nil || ok {
		t.Fatalf("expected no snapshot, ok=%v err=%v", ok, err)
	}
	if err := store.UpsertMemberRoles("g", "u", []string{"r1", "r2", "", "r2"}, time.Time{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertMemberRoles("g", "u", []string{"r2", "r3"}, time.Time{}); err != nil {
		t.Fatalf("upsert2: %v", err)
	}
	roles, ok, err := store.GetMemberRoles("g", "u")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	sort.Strings(roles)
	if len(roles) != 2 || roles[0] != "r2" || roles[1] != "r3" {
		t.Fatalf("unexpected roles: %#v", roles)
	}
}

func TestHeartbeat(t *testing.T) {
	store := newTempStore(t)
	if _, ok, err := store.GetHeartbeat(); err != nil || ok {
		t.Fatalf("expected no heartbeat, ok=%v err=%v", ok, err)
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.SetHeartbeat(now); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.GetHeartbeat()
	if err != nil || !ok || !got.Equal(now) {
		t.Fatalf("unexpected heartbeat %v ok=%v err=%v", got, ok, err)
	}
}
