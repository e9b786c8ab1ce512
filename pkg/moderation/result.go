package moderation

// Outcome is the status of a single workflow step.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTimeout
	OutcomeInvalid
	OutcomeDenied
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeDenied:
		return "denied"
	default:
		return "cancelled"
	}
}

// Result carries a step's value and outcome. Value is meaningful only when Outcome is OutcomeOK.
type Result[T any] struct {
	Value   T
	Outcome Outcome
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v, Outcome: OutcomeOK} }

// Fail returns an empty result with the given outcome.
func Fail[T any](o Outcome) Result[T] { return Result[T]{Outcome: o} }

// OK reports whether the step succeeded.
func (r Result[T]) OK() bool { return r.Outcome == OutcomeOK }

// AbortReason explains why a workflow stopped before completion.
type AbortReason string

const (
	AbortNone            AbortReason = ""
	AbortPermission      AbortReason = "permission"
	AbortMissingTarget   AbortReason = "missing_target"
	AbortMissingEvidence AbortReason = "missing_evidence"
	AbortInvalidDuration AbortReason = "invalid_duration"
	AbortTimeout         AbortReason = "timeout"
	AbortRemoteFailed    AbortReason = "remote_failed"
	AbortRoleMissing     AbortReason = "role_missing"
	AbortAlreadyApplied  AbortReason = "already_applied"
	AbortCancelled       AbortReason = "cancelled"
)

// Report is the terminal state of a workflow run.
type Report struct {
	Done        bool
	Abort       AbortReason
	Request     *Request
	DMDelivered bool
	Err         error
}
