package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/storage"
	"github.com/small-frappuccino/modwarden/pkg/task"
)

type fakeCases struct {
	guildID string
	userID  string
	limit   int
	records []storage.CaseRecord
	err     error
}

func (f *fakeCases) ListCasesForUser(_ context.Context, guildID, userID string, limit int) ([]storage.CaseRecord, error) {
	f.guildID, f.userID, f.limit = guildID, userID, limit
	return f.records, f.err
}

type fakeTasks struct{}

func (fakeTasks) Stats() task.Stats { return task.Stats{GroupsCount: 2, RegisteredTypes: 1} }

func newTestServer(t *testing.T, opts Options) (*Server, *files.ConfigManager) {
	t.Helper()
	cm := files.NewConfigManagerWithPath(filepath.Join(t.TempDir(), "settings.json"))
	if err := cm.LoadConfig(); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := NewServer("127.0.0.1:0", cm, opts)
	if s == nil {
		t.Fatalf("expected server")
	}
	return s, cm
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresAddr(t *testing.T) {
	t.Parallel()
	if s := NewServer("  ", files.NewConfigManagerWithPath("x.json"), Options{}); s != nil {
		t.Fatalf("expected nil server for empty addr")
	}
	var s *Server
	if err := s.Start(); err != nil {
		t.Fatalf("nil start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("nil stop: %v", err)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Options{})

	rec := serve(s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("expected default collectors in metrics output")
	}
}

func TestListCases(t *testing.T) {
	t.Parallel()
	cases := &fakeCases{records: []storage.CaseRecord{{
		CaseID:    "c1",
		GuildID:   "g1",
		Kind:      "ban",
		TargetID:  "u1",
		Reason:    "spam",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	s, _ := newTestServer(t, Options{Cases: cases})

	rec := serve(s, http.MethodGet, "/v1/cases?user=u1&guild=g1&limit=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if cases.userID != "u1" || cases.guildID != "g1" || cases.limit != maxCaseLimit {
		t.Fatalf("unexpected query %+v", cases)
	}
	var body struct {
		Cases []storage.CaseRecord `json:"cases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Cases) != 1 || body.Cases[0].CaseID != "c1" || body.Cases[0].Kind != "ban" {
		t.Fatalf("unexpected cases %+v", body.Cases)
	}
}

func TestListCasesErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{})
	if rec := serve(s, http.MethodGet, "/v1/cases?user=u1", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without ledger, got %d", rec.Code)
	}

	s, _ = newTestServer(t, Options{Cases: &fakeCases{}})
	if rec := serve(s, http.MethodGet, "/v1/cases", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user, got %d", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/v1/cases?user=u1&limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
	rec := serve(s, http.MethodGet, "/v1/cases?user=u1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cases":[]`) {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}

	s, _ = newTestServer(t, Options{Cases: &fakeCases{err: errors.New("db down")}})
	if rec := serve(s, http.MethodGet, "/v1/cases?user=u1", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestTaskStats(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Options{Tasks: fakeTasks{}})

	rec := serve(s, http.MethodGet, "/v1/tasks", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"groups":2`) {
		t.Fatalf("unexpected stats: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRuntimeConfigPatch(t *testing.T) {
	t.Parallel()
	s, cm := newTestServer(t, Options{})

	rec := serve(s, http.MethodPost, "/v1/runtime-config", `{"command_prefix":"?","response_timeout":"45s","evidence_window":12,"role_sweep_rate":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	rt := cm.Runtime()
	if rt.CommandPrefix != "?" || rt.ResponseTimeout.Std() != 45*time.Second || rt.EvidenceWindow.Std() != 12*time.Second || rt.RoleSweepPerSecond != 4 {
		t.Fatalf("patch not applied: %+v", rt)
	}

	rec = serve(s, http.MethodGet, "/v1/runtime-config", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"response_timeout":"45s"`) {
		t.Fatalf("unexpected runtime config: %s", rec.Body.String())
	}
}

func TestRuntimeConfigPatchRejectsBadInput(t *testing.T) {
	t.Parallel()
	s, cm := newTestServer(t, Options{})

	cases := []struct {
		name string
		body string
	}{
		{"empty", `{}`},
		{"malformed", `{"command_prefix":`},
		{"unknown field", `{"bot_theme":"dark"}`},
		{"bad duration", `{"response_timeout":"soon"}`},
		{"negative rate", `{"role_sweep_rate":-1}`},
		{"partial", `{"command_prefix":"$","evidence_window":"nope"}`},
	}
	for _, tc := range cases {
		if rec := serve(s, http.MethodPost, "/v1/runtime-config", tc.body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
	if got := cm.Runtime().CommandPrefix; got != files.DefaultCommandPrefix {
		t.Fatalf("rejected patches must not apply, prefix=%q", got)
	}

	if rec := serve(s, http.MethodPut, "/v1/runtime-config", `{}`); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Options{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + s.listener.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
