// Package reconcile classifies entities by comparing what is on disk with
// what the lockfile recorded, and applies the action a policy picks.
//
// Modules and tracked symlinks share this state machine. What "content"
// and "action" mean for each is supplied through a Capability.
package reconcile

import (
	"context"
	"sort"

	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fingerprint"
)

// State is the classification of one entity.
type State string

const (
	// Missing: nothing recorded yet.
	Missing State = "missing"
	// UpToDate: current content matches the record.
	UpToDate State = "up_to_date"
	// Modified: content present but different from the record.
	Modified State = "modified"
	// Deleted: recorded, but the content is gone.
	Deleted State = "deleted"
	// Stale: unchanged itself, but an input changed since the last run.
	Stale State = "stale"
)

// Action is what to do about an entity.
type Action string

const (
	None    Action = ""
	Track   Action = "track"
	Restore Action = "restore"
	Rehash  Action = "rehash"
	Rebuild Action = "rebuild"
	Forget  Action = "forget"
)

// Observation is an entity's present state.
type Observation struct {
	// Present is false when the content does not exist.
	Present bool
	// Current is the content fingerprint.
	Current fingerprint.Fingerprint
	// Inputs are fingerprints of things the entity was derived from, such as
	// a module's dependencies.
	Inputs map[string]fingerprint.Fingerprint
	// Drift describes a structural problem that makes the entity Modified even
	// when its content matches, such as a link pointing elsewhere.
	Drift string
}

// Record is what the lockfile holds for an entity.
type Record struct {
	Fingerprint fingerprint.Fingerprint
	Inputs      map[string]fingerprint.Fingerprint
}

// Capability adapts one entity kind to the engine.
type Capability[E any] interface {
	Key(e E) string
	Observe(ctx context.Context, e E) (Observation, error)
	Recorded(e E) (Record, bool)
	Apply(ctx context.Context, e E, action Action, st Status) error
}

// Status is the classification of one entity.
type Status struct {
	Key         string
	State       State
	Observation Observation
	Record      Record
	HasRecord   bool
	// ChangedInputs lists inputs whose fingerprint differs from the record.
	ChangedInputs []string
	// Err is set when the entity could not be observed.
	Err error
}

// Result is the outcome of one Step.
type Result struct {
	Status
	Action  Action
	Applied bool
	// Err is set when observing or applying failed.
	Err error
}

// Policy picks the action for a classified entity.
type Policy func(st Status) Action

// Engine runs the state machine for one capability.
type Engine[E any] struct {
	cap Capability[E]
}

// New creates an engine.
func New[E any](c Capability[E]) *Engine[E] {
	return &Engine[E]{cap: c}
}

// Classify observes one entity. It never mutates anything.
func (en *Engine[E]) Classify(ctx context.Context, e E) Status {
	st := Status{Key: en.cap.Key(e)}
	st.Record, st.HasRecord = en.cap.Recorded(e)

	obs, err := en.cap.Observe(ctx, e)
	if err != nil {
		st.Err = err
		return st
	}
	st.Observation = obs
	st.State, st.ChangedInputs = classify(obs, st.Record, st.HasRecord)
	return st
}

func classify(obs Observation, rec Record, hasRecord bool) (State, []string) {
	switch {
	case !hasRecord:
		return Missing, nil
	case !obs.Present:
		return Deleted, nil
	case obs.Drift != "" || obs.Current != rec.Fingerprint:
		return Modified, nil
	}
	if changed := changedInputs(obs.Inputs, rec.Inputs); len(changed) > 0 {
		return Stale, changed
	}
	return UpToDate, nil
}

func changedInputs(current, recorded map[string]fingerprint.Fingerprint) []string {
	var changed []string
	for name, fp := range current {
		if recorded[name] != fp {
			changed = append(changed, name)
		}
	}
	for name := range recorded {
		if _, ok := current[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

// ClassifyAll classifies every entity independently; one failure does not
// stop the others.
func (en *Engine[E]) ClassifyAll(ctx context.Context, entities []E) []Status {
	out := make([]Status, 0, len(entities))
	for _, e := range entities {
		out = append(out, en.Classify(ctx, e))
	}
	return out
}

// Step classifies e, asks the policy for an action and applies it.
func (en *Engine[E]) Step(ctx context.Context, e E, policy Policy) Result {
	st := en.Classify(ctx, e)
	res := Result{Status: st}
	if st.Err != nil {
		res.Err = st.Err
		return res
	}

	res.Action = policy(st)
	if res.Action == None {
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = canceled(err)
		return res
	}
	if err := en.cap.Apply(ctx, e, res.Action, st); err != nil {
		res.Err = err
		return res
	}
	res.Applied = true
	return res
}

// Reconcile runs Step over entities in order. Once ctx is done, remaining
// entities are reported as canceled without being touched.
func (en *Engine[E]) Reconcile(ctx context.Context, entities []E, policy Policy) []Result {
	out := make([]Result, 0, len(entities))
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			out = append(out, Result{Status: Status{Key: en.cap.Key(e)}, Err: canceled(err)})
			continue
		}
		out = append(out, en.Step(ctx, e, policy))
	}
	return out
}

func canceled(err error) error {
	return errors.Wrap(err, errors.ErrCanceled, "canceled")
}

// Failed reports whether any result carries an error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Observe returns no action; it is the policy of status commands.
func Observe(Status) Action { return None }

// Only returns a policy that maps the given states to action.
func Only(action Action, states ...State) Policy {
	return func(st Status) Action {
		for _, s := range states {
			if st.State == s {
				return action
			}
		}
		return None
	}
}
