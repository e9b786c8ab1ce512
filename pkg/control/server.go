// Package control serves the operational HTTP endpoints of a running bot:
// health, Prometheus metrics, the moderation case ledger and runtime tuning.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/storage"
	"github.com/small-frappuccino/modwarden/pkg/task"
)

const (
	defaultMaxBodyBytes = 64 * 1024
	maxCaseLimit        = 100
)

// CaseLister reads the moderation case ledger.
type CaseLister interface {
	ListCasesForUser(ctx context.Context, guildID, userID string, limit int) ([]storage.CaseRecord, error)
}

// TaskStats reports task router state.
type TaskStats interface {
	Stats() task.Stats
}

// Options configures optional endpoints. Nil fields disable them.
type Options struct {
	Cases CaseLister
	Tasks TaskStats
}

// Server exposes operational controls for a running modwarden instance.
type Server struct {
	addr          string
	configManager *files.ConfigManager
	cases         CaseLister
	tasks         TaskStats
	router        chi.Router
	httpServer    *http.Server
	listener      net.Listener
}

// NewServer returns nil if addr is empty.
func NewServer(addr string, configManager *files.ConfigManager, opts Options) *Server {
	addr = strings.TrimSpace(addr)
	if addr == "" || configManager == nil {
		return nil
	}

	s := &Server{
		addr:          addr,
		configManager: configManager,
		cases:         opts.Cases,
		tasks:         opts.Tasks,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/cases", s.handleCases)
		r.Get("/tasks", s.handleTasks)
		r.Get("/runtime-config", s.handleGetRuntimeConfig)
		r.Post("/runtime-config", s.handleRuntimeConfig)
	})
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.router
}

// Start opens the control server listening socket.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control server: %w", err)
	}
	s.listener = ln

	log.ApplicationLogger().Info("Control server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ApplicationLogger().Error("Control server stopped unexpectedly", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the control server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown control server: %w", err)
	}

	log.ApplicationLogger().Info("Control server stopped", "addr", s.addr)
	return nil
}

func (s *Server) handleCases(w http.ResponseWriter, r *http.Request) {
	if s.cases == nil {
		http.Error(w, "case ledger unavailable", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user"))
	if userID == "" {
		http.Error(w, "query parameter user is required", http.StatusBadRequest)
		return
	}
	limit := 10
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxCaseLimit)
	}

	cases, err := s.cases.ListCasesForUser(r.Context(), strings.TrimSpace(q.Get("guild")), userID, limit)
	if err != nil {
		log.ApplicationLogger().Error("Failed to list cases", "userID", userID, "err", err)
		http.Error(w, "failed to list cases", http.StatusInternalServerError)
		return
	}
	if cases == nil {
		cases = []storage.CaseRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	if s.tasks == nil {
		http.Error(w, "task router unavailable", http.StatusServiceUnavailable)
		return
	}
	st := s.tasks.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"groups":           st.GroupsCount,
		"inflight":         st.InflightCount,
		"closed":           st.RouterClosed,
		"registered_types": st.RegisteredTypes,
	})
}

func (s *Server) handleGetRuntimeConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runtime_config": s.configManager.Runtime()})
}

func (s *Server) handleRuntimeConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer r.Body.Close()

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if len(patch) == 0 {
		http.Error(w, "payload must contain at least one field", http.StatusBadRequest)
		return
	}

	updated, err := s.applyRuntimePatch(patch)
	if err != nil {
		status := http.StatusInternalServerError
		var httpErr *httpError
		if errors.As(err, &httpErr) {
			status = httpErr.code
		}
		http.Error(w, fmt.Sprintf("failed to apply runtime config: %v", err), status)
		return
	}

	log.ApplicationLogger().Info("Runtime config updated", "fields", len(patch))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"runtime_config": updated,
	})
}

func (s *Server) applyRuntimePatch(patch map[string]json.RawMessage) (files.RuntimeConfig, error) {
	return s.configManager.UpdateRuntimeConfig(func(rc *files.RuntimeConfig) error {
		for field, raw := range patch {
			setter, ok := runtimeConfigFieldSetters[field]
			if !ok {
				return badRequest(fmt.Errorf("unknown field %q", field))
			}
			if err := setter(rc, raw); err != nil {
				return badRequest(fmt.Errorf("field %s: %w", field, err))
			}
		}
		return nil
	})
}

type setterFunc func(*files.RuntimeConfig, json.RawMessage) error

// Durations accept Go duration strings ("45s") or whole seconds.
var runtimeConfigFieldSetters = map[string]setterFunc{
	"command_prefix":        stringSetter(func(rc *files.RuntimeConfig, v string) { rc.CommandPrefix = v }),
	"response_timeout":      durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.ResponseTimeout = v }),
	"evidence_window":       durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.EvidenceWindow = v }),
	"evidence_delete_delay": durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.EvidenceDeleteDelay = v }),
	"timeout_delete_delay":  durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.TimeoutDeleteDelay = v }),
	"log_retry_backoff":     durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.LogRetryBackoff = v }),
	"dm_retry_backoff":      durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.DMRetryBackoff = v }),
	"role_check_cooldown":   durationSetter(func(rc *files.RuntimeConfig, v files.Duration) { rc.RoleCheckCooldown = v }),
	"role_sweep_rate":       intSetter(func(rc *files.RuntimeConfig, v int) { rc.RoleSweepPerSecond = v }),
}

func stringSetter(assign func(*files.RuntimeConfig, string)) setterFunc {
	return func(rc *files.RuntimeConfig, raw json.RawMessage) error {
		v, err := decodeString(raw)
		if err != nil {
			return err
		}
		assign(rc, v)
		return nil
	}
}

func durationSetter(assign func(*files.RuntimeConfig, files.Duration)) setterFunc {
	return func(rc *files.RuntimeConfig, raw json.RawMessage) error {
		v, err := decodeDuration(raw)
		if err != nil {
			return err
		}
		assign(rc, v)
		return nil
	}
}

func intSetter(assign func(*files.RuntimeConfig, int)) setterFunc {
	return func(rc *files.RuntimeConfig, raw json.RawMessage) error {
		v, err := decodeInt(raw)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("must not be negative")
		}
		assign(rc, v)
		return nil
	}
}

func badRequest(err error) error {
	return &httpError{
		code: http.StatusBadRequest,
		err:  err,
	}
}

type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ApplicationLogger().Error("Failed to encode control response", "err", err)
	}
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty string value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return v, nil
}

func decodeDuration(raw json.RawMessage) (files.Duration, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty duration value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var d files.Duration
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func decodeInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty int value")
	}
	if bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
