package build

import (
	"time"

	"github.com/PatWie/sprout/pkg/reconcile"
)

// Outcome is what happened to one module during a run.
type Outcome string

const (
	// Built: every planned stage succeeded and the lock entry was written.
	Built Outcome = "built"
	// UpToDate: nothing had to run.
	UpToDate Outcome = "up_to_date"
	// StaleSkipped: a dependency changed but the stale policy only reports it.
	StaleSkipped Outcome = "stale"
	// Failed: a stage failed or the lock could not be written.
	Failed Outcome = "failed"
	// Blocked: a dependency failed or is not built; nothing was attempted.
	Blocked Outcome = "blocked"
	// Planned: dry run; the stages that would run are in Scripts.
	Planned Outcome = "dry_run"
	// Canceled: the run was interrupted before or while handling the module.
	Canceled Outcome = "canceled"
)

// Script is one stage as it would be, or was, executed.
type Script struct {
	Stage string
	Dir   string
	Text  string
}

// Report describes one module's part of a run.
type Report struct {
	Module string
	// State is the classification before anything ran.
	State         reconcile.State
	ChangedInputs []string
	Outcome       Outcome
	// Stages lists the stages that ran, or would run in a dry run.
	Stages  []string
	Scripts []Script
	// Reason explains Blocked and StaleSkipped outcomes.
	Reason  string
	Err     error
	Elapsed time.Duration
}

// OK reports whether the module ended in a good state.
func (r Report) OK() bool {
	switch r.Outcome {
	case Failed, Blocked, Canceled:
		return false
	}
	return true
}

// AnyFailed reports whether any module did not end in a good state.
func AnyFailed(reports []Report) bool {
	for _, r := range reports {
		if !r.OK() {
			return true
		}
	}
	return false
}

// Counts tallies outcomes.
func Counts(reports []Report) map[Outcome]int {
	out := map[Outcome]int{}
	for _, r := range reports {
		out[r.Outcome]++
	}
	return out
}
