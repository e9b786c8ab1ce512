// Package metrics exposes Prometheus counters for moderation workflows,
// audit posting, DM notifications and announcement mirroring.
//
// Label values are drawn from small fixed sets (action kinds, outcome
// names, mirror targets) so cardinality stays bounded. Collectors register
// on the default registry and are served by the control server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "modwarden"

// Crosspost result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

var (
	// moderationActions counts finished workflows by action kind and outcome
	// ("done" or the abort reason).
	moderationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_actions_total",
			Help:      "Moderation workflows by action kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	auditPosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_posts_total",
			Help:      "Audit log posts by result.",
		},
		[]string{"result"},
	)

	dmNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dm_notifications_total",
			Help:      "Direct message notifications by result.",
		},
		[]string{"result"},
	)

	// crossposts counts mirror attempts per target (guilded, roblox).
	crossposts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crosspost_total",
			Help:      "Announcement mirror attempts by target and result.",
		},
		[]string{"target", "result"},
	)
)

func init() {
	prometheus.MustRegister(moderationActions, auditPosts, dmNotifications, crossposts)
}

// Recorder satisfies the outcome-recorder interfaces of the moderation
// executor, the DM notifier, the audit logger and the mirror service.
type Recorder struct{}

// RecordAction counts one finished moderation workflow.
func (Recorder) RecordAction(kind, outcome string) {
	if outcome == "" {
		outcome = "done"
	}
	moderationActions.WithLabelValues(kind, outcome).Inc()
}

// RecordAudit counts one audit post attempt (posted, fallback, failed, unavailable).
func (Recorder) RecordAudit(result string) {
	auditPosts.WithLabelValues(result).Inc()
}

// RecordDM counts one DM notification attempt (sent, failed).
func (Recorder) RecordDM(result string) {
	dmNotifications.WithLabelValues(result).Inc()
}

// RecordCrosspost counts one mirror attempt for target.
func (Recorder) RecordCrosspost(target string, ok bool) {
	result := ResultFailed
	if ok {
		result = ResultOK
	}
	crossposts.WithLabelValues(target, result).Inc()
}
