package display

import (
	"time"

	"github.com/PatWie/sprout/pkg/build"
	"github.com/PatWie/sprout/pkg/clean"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/reconcile"
)

// EntityStatus is one module or tracked symlink in a status listing.
type EntityStatus struct {
	Name  string          `json:"name" yaml:"name"`
	State reconcile.State `json:"state" yaml:"state"`
	// Detail explains Modified drift or lists changed inputs.
	Detail        string   `json:"detail,omitempty" yaml:"detail,omitempty"`
	ChangedInputs []string `json:"changed_inputs,omitempty" yaml:"changed_inputs,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Recorded      string   `json:"recorded,omitempty" yaml:"recorded,omitempty"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
	Code          string   `json:"code,omitempty" yaml:"code,omitempty"`
}

// StatusView is the result of a status command.
type StatusView struct {
	Modules  []EntityStatus `json:"modules,omitempty" yaml:"modules,omitempty"`
	Symlinks []EntityStatus `json:"symlinks,omitempty" yaml:"symlinks,omitempty"`
}

// FromStatuses converts engine statuses.
func FromStatuses(statuses []reconcile.Status) []EntityStatus {
	out := make([]EntityStatus, 0, len(statuses))
	for _, st := range statuses {
		e := EntityStatus{
			Name:          st.Key,
			State:         st.State,
			Detail:        st.Observation.Drift,
			ChangedInputs: st.ChangedInputs,
		}
		if !st.Observation.Current.IsAbsent() {
			e.Fingerprint = st.Observation.Current.Short()
		}
		if st.HasRecord {
			e.Recorded = st.Record.Fingerprint.Short()
		}
		if st.Err != nil {
			e.Error = st.Err.Error()
			e.Code = string(errors.GetErrorCode(st.Err))
		}
		out = append(out, e)
	}
	return out
}

// OnlyChanged drops up-to-date entries.
func OnlyChanged(entries []EntityStatus) []EntityStatus {
	var out []EntityStatus
	for _, e := range entries {
		if e.State != reconcile.UpToDate || e.Error != "" {
			out = append(out, e)
		}
	}
	return out
}

// ModuleResult is one module of a build run.
type ModuleResult struct {
	Name     string        `json:"name" yaml:"name"`
	Outcome  build.Outcome `json:"outcome" yaml:"outcome"`
	State    string        `json:"state,omitempty" yaml:"state,omitempty"`
	Stages   []string      `json:"stages,omitempty" yaml:"stages,omitempty"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	LogPath  string        `json:"log_path,omitempty" yaml:"log_path,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
	Scripts  []ScriptView  `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	ExitCode int           `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
}

// ScriptView is a dry-run stage script.
type ScriptView struct {
	Stage string `json:"stage" yaml:"stage"`
	Dir   string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Text  string `json:"text" yaml:"text"`
}

// RunView is the result of fetch, build, install or update.
type RunView struct {
	Verb    string                `json:"verb" yaml:"verb"`
	DryRun  bool                  `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Modules []ModuleResult        `json:"modules" yaml:"modules"`
	Counts  map[build.Outcome]int `json:"counts" yaml:"counts"`
}

// FromReports converts a build run.
func FromReports(verb string, dryRun bool, reports []build.Report) RunView {
	v := RunView{Verb: verb, DryRun: dryRun, Counts: build.Counts(reports)}
	for _, r := range reports {
		m := ModuleResult{
			Name:    r.Module,
			Outcome: r.Outcome,
			State:   string(r.State),
			Stages:  r.Stages,
			Reason:  r.Reason,
			Elapsed: r.Elapsed,
		}
		if r.Err != nil {
			m.Error = r.Err.Error()
			details := errors.GetErrorDetails(r.Err)
			m.LogPath, _ = details[errors.DetailLogPath].(string)
			m.ExitCode, _ = details[errors.DetailExitCode].(int)
		}
		if dryRun {
			for _, s := range r.Scripts {
				m.Scripts = append(m.Scripts, ScriptView{Stage: s.Stage, Dir: s.Dir, Text: s.Text})
			}
		}
		v.Modules = append(v.Modules, m)
	}
	return v
}

// CleanEntry is one clean candidate.
type CleanEntry struct {
	Kind   clean.Kind `json:"kind" yaml:"kind"`
	Module string     `json:"module" yaml:"module"`
	Path   string     `json:"path,omitempty" yaml:"path,omitempty"`
	Size   int64      `json:"size" yaml:"size"`
	Reason string     `json:"reason" yaml:"reason"`
}

// CleanView is the result of clean.
type CleanView struct {
	DryRun  bool         `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Entries []CleanEntry `json:"entries" yaml:"entries"`
	Total   int64        `json:"total" yaml:"total"`
}

// FromCandidates converts clean candidates.
func FromCandidates(dryRun bool, candidates []clean.Candidate) CleanView {
	v := CleanView{DryRun: dryRun, Total: clean.TotalSize(candidates)}
	for _, c := range candidates {
		v.Entries = append(v.Entries, CleanEntry{Kind: c.Kind, Module: c.Module, Path: c.Path, Size: c.Size, Reason: c.Reason})
	}
	return v
}

// ActionResult is one entity touched by restore, rehash or accept.
type ActionResult struct {
	Name    string           `json:"name" yaml:"name"`
	State   reconcile.State  `json:"state" yaml:"state"`
	Action  reconcile.Action `json:"action,omitempty" yaml:"action,omitempty"`
	Applied bool             `json:"applied" yaml:"applied"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// ActionView lists the results of one reconcile pass.
type ActionView struct {
	Title   string         `json:"title" yaml:"title"`
	DryRun  bool           `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Results []ActionResult `json:"results" yaml:"results"`
}

// FromResults converts engine results. Entities that needed no action are
// dropped.
func FromResults(title string, dryRun bool, results []reconcile.Result) ActionView {
	v := ActionView{Title: title, DryRun: dryRun, Results: []ActionResult{}}
	for _, r := range results {
		if r.Action == reconcile.None && r.Err == nil {
			continue
		}
		a := ActionResult{Name: r.Key, State: r.State, Action: r.Action, Applied: r.Applied}
		if r.Err != nil {
			a.Error = r.Err.Error()
		}
		v.Results = append(v.Results, a)
	}
	return v
}

// FailedResults counts results carrying an error.
func FailedResults(results []reconcile.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// ModuleHash lists the fingerprints of one module.
type ModuleHash struct {
	Name        string `json:"name" yaml:"name"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	Tree        string `json:"tree" yaml:"tree"`
	Fetch       string `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	Recorded    string `json:"recorded,omitempty" yaml:"recorded,omitempty"`
}
