package queue

import (
	"strings"
	"time"
)

// Outcome is the terminal state of a task.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// ParseOutcome maps a task state name to an Outcome. ok is false for
// non-terminal states.
func ParseOutcome(state string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(state))) {
	case OutcomeDone:
		return OutcomeDone, true
	case OutcomeFailed:
		return OutcomeFailed, true
	case OutcomeCancelled:
		return OutcomeCancelled, true
	default:
		return "", false
	}
}

// PathUsed records how the transcript was produced.
type PathUsed string

const (
	PathNone     PathUsed = ""
	PathSubtitle PathUsed = "subtitle"
	PathASR      PathUsed = "asr"
)

// Record is one finished task.
type Record struct {
	TaskID       string
	URL          string
	Title        string
	Outcome      Outcome
	OutputPath   string
	ErrorKind    string
	ErrorMessage string
	Format       string
	Model        string
	PathUsed     PathUsed
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Elapsed is the wall time the task ran.
func (r Record) Elapsed() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary counts stored records per outcome.
type Summary struct {
	Total     int
	Done      int
	Failed    int
	Cancelled int
}
