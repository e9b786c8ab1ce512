package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordActionDefaultsOutcome(t *testing.T) {
	var r Recorder
	base := testutil.ToFloat64(moderationActions.WithLabelValues("ban", "done"))
	baseTimeout := testutil.ToFloat64(moderationActions.WithLabelValues("ban", "timeout"))

	r.RecordAction("ban", "")
	r.RecordAction("ban", "timeout")

	if got := testutil.ToFloat64(moderationActions.WithLabelValues("ban", "done")); got != base+1 {
		t.Fatalf("done counter=%v want %v", got, base+1)
	}
	if got := testutil.ToFloat64(moderationActions.WithLabelValues("ban", "timeout")); got != baseTimeout+1 {
		t.Fatalf("timeout counter=%v want %v", got, baseTimeout+1)
	}
}

func TestRecordResults(t *testing.T) {
	var r Recorder
	basePosted := testutil.ToFloat64(auditPosts.WithLabelValues("posted"))
	baseUnavailable := testutil.ToFloat64(auditPosts.WithLabelValues("unavailable"))
	baseDM := testutil.ToFloat64(dmNotifications.WithLabelValues("failed"))
	baseCP := testutil.ToFloat64(crossposts.WithLabelValues("guilded", ResultOK))
	baseCPFail := testutil.ToFloat64(crossposts.WithLabelValues("roblox", ResultFailed))

	r.RecordAudit("posted")
	r.RecordAudit("unavailable")
	r.RecordDM("failed")
	r.RecordCrosspost("guilded", true)
	r.RecordCrosspost("roblox", false)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"audit posted", testutil.ToFloat64(auditPosts.WithLabelValues("posted")), basePosted + 1},
		{"audit unavailable", testutil.ToFloat64(auditPosts.WithLabelValues("unavailable")), baseUnavailable + 1},
		{"dm failed", testutil.ToFloat64(dmNotifications.WithLabelValues("failed")), baseDM + 1},
		{"crosspost ok", testutil.ToFloat64(crossposts.WithLabelValues("guilded", ResultOK)), baseCP + 1},
		{"crosspost failed", testutil.ToFloat64(crossposts.WithLabelValues("roblox", ResultFailed)), baseCPFail + 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}
