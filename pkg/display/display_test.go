// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Verify view conversion and text/YAML/JSON rendering

package display

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/PatWie/sprout/pkg/build"
	"github.com/PatWie/sprout/pkg/errors"
	"github.com/PatWie/sprout/pkg/fingerprint"
	"github.com/PatWie/sprout/pkg/reconcile"
	"github.com/PatWie/sprout/pkg/style"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func statuses() []reconcile.Status {
	fp := fingerprint.Bytes([]byte("x"))
	return []reconcile.Status{
		{Key: "rust", State: reconcile.UpToDate, HasRecord: true,
			Observation: reconcile.Observation{Present: true, Current: fp}, Record: reconcile.Record{Fingerprint: fp}},
		{Key: "ripgrep", State: reconcile.Stale, HasRecord: true, ChangedInputs: []string{"rust"},
			Observation: reconcile.Observation{Present: true, Current: fp}, Record: reconcile.Record{Fingerprint: fp}},
		{Key: "broken", Err: errors.New(errors.ErrFilesystem, "cannot read")},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"YAML", FormatYAML, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromStatuses(t *testing.T) {
	got := FromStatuses(statuses())
	require.Len(t, got, 3)
	assert.Equal(t, "rust", got[0].Name)
	assert.Len(t, got[0].Fingerprint, 8)
	assert.Equal(t, got[0].Fingerprint, got[0].Recorded)
	assert.Equal(t, []string{"rust"}, got[1].ChangedInputs)
	assert.Equal(t, "FILESYSTEM", got[2].Code)

	changed := OnlyChanged(got)
	require.Len(t, changed, 2)
	assert.Equal(t, "ripgrep", changed[0].Name)
}

func TestRenderer_StatusText(t *testing.T) {
	style.SetColorProfile(termenv.Ascii)
	var buf bytes.Buffer
	v := StatusView{Modules: FromStatuses(statuses()), Symlinks: []EntityStatus{}}
	require.NoError(t, NewRenderer(&buf, FormatText).Status(v))

	out := buf.String()
	assert.Contains(t, out, "Modules\n")
	assert.Contains(t, out, "✓ rust  up to date\n")
	assert.Contains(t, out, "! ripgrep  stale (changed: rust)\n")
	assert.Contains(t, out, "✗ broken  [FILESYSTEM] cannot read\n")
	assert.Contains(t, out, "Symlinks\n")
	assert.Contains(t, out, "(none)")
}

func TestRenderer_StatusStructured(t *testing.T) {
	v := StatusView{Modules: FromStatuses(statuses())}

	var y bytes.Buffer
	require.NoError(t, NewRenderer(&y, FormatYAML).Status(v))
	var fromYAML StatusView
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &fromYAML))
	assert.Equal(t, v.Modules[1].ChangedInputs, fromYAML.Modules[1].ChangedInputs)
	assert.NotContains(t, y.String(), "symlinks")

	var j bytes.Buffer
	require.NoError(t, NewRenderer(&j, FormatJSON).Status(v))
	var fromJSON map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(j.Bytes(), &fromJSON))
	assert.Equal(t, "stale", fromJSON["modules"][1]["state"])
}

func TestRenderer_Run(t *testing.T) {
	style.SetColorProfile(termenv.Ascii)
	reports := []build.Report{
		{Module: "base", Outcome: build.Failed, Stages: []string{"build"},
			Err: errors.New(errors.ErrBuild, "base build exited with code 2").
				WithDetail(errors.DetailExitCode, 2).WithDetail(errors.DetailLogPath, "/s/logs/base-build.log")},
		{Module: "app", Outcome: build.Blocked, Reason: "dependency base failed"},
		{Module: "tool", Outcome: build.Built, Stages: []string{"fetch", "build"}},
	}
	v := FromReports("build", false, reports)
	assert.Equal(t, 2, v.Modules[0].ExitCode)
	assert.Equal(t, "/s/logs/base-build.log", v.Modules[0].LogPath)

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatText).Run(v))
	out := buf.String()
	assert.Contains(t, out, "✗ base  failed [build]\n")
	assert.Contains(t, out, "log: /s/logs/base-build.log")
	assert.Contains(t, out, "✗ app  blocked\n      dependency base failed\n")
	assert.Contains(t, out, "✓ tool  built [fetch, build]\n")
	assert.Contains(t, out, "1 built, 1 failed, 1 blocked\n")
}

func TestRenderer_DryRunScripts(t *testing.T) {
	style.SetColorProfile(termenv.Ascii)
	reports := []build.Report{{Module: "tool", Outcome: build.Planned, Stages: []string{"build"},
		Scripts: []build.Script{{Stage: "build", Dir: "/src/tool", Text: "set -e\nmake\n"}}}}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatText).Run(FromReports("build", true, reports)))
	out := buf.String()
	assert.Contains(t, out, "build (dry run)\n")
	assert.Contains(t, out, "    # build in /src/tool\n    set -e\n    make\n")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", HumanSize(512))
	assert.Equal(t, "1.0 KiB", HumanSize(1024))
	assert.Equal(t, "1.5 MiB", HumanSize(1536*1024))
}

func TestRenderer_Actions(t *testing.T) {
	style.SetColorProfile(termenv.Ascii)
	results := []reconcile.Result{
		{Status: reconcile.Status{Key: ".vimrc", State: reconcile.Deleted}, Action: reconcile.Restore, Applied: true},
		{Status: reconcile.Status{Key: ".bashrc", State: reconcile.UpToDate}},
		{Status: reconcile.Status{Key: ".zshrc", State: reconcile.Modified}, Action: reconcile.Restore,
			Err: errors.New(errors.ErrFilesystem, "regular file in the way")},
	}
	v := FromResults("restore", false, results)
	require.Len(t, v.Results, 2)
	assert.Equal(t, 1, FailedResults(results))

	var buf bytes.Buffer
	require.NoError(t, NewRenderer(&buf, FormatText).Actions(v))
	out := buf.String()
	assert.Contains(t, out, "✓ .vimrc  restore (was deleted)\n")
	assert.Contains(t, out, ".zshrc  [FILESYSTEM] regular file in the way\n")
	assert.NotContains(t, out, ".bashrc")
}
