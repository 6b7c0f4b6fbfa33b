package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"quiet error level", QuietVerbosity, zerolog.ErrorLevel},
		{"default warn level", 0, zerolog.WarnLevel},
		{"info level", 1, zerolog.InfoLevel},
		{"debug level", 2, zerolog.DebugLevel},
		{"trace level", 3, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 5, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			t.Setenv("XDG_STATE_HOME", tempDir)

			SetupLogger(tt.verbosity)

			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("SetupLogger(%d) set level to %v, want %v",
					tt.verbosity, zerolog.GlobalLevel(), tt.wantLevel)
			}

			logPath := filepath.Join(tempDir, "sprout", "sprout.log")
			if _, err := os.Stat(logPath); os.IsNotExist(err) {
				t.Errorf("Log file was not created at %s", logPath)
			}
		})
	}
}

func TestGetLogFilePath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	if got := getLogFilePath(); got != "/custom/state/sprout/sprout.log" {
		t.Errorf("getLogFilePath() = %q", got)
	}

	t.Setenv("XDG_STATE_HOME", "")
	if got := getLogFilePath(); !strings.HasSuffix(got, filepath.Join(".local", "state", "sprout", "sprout.log")) {
		t.Errorf("getLogFilePath() = %q, want suffix .local/state/sprout/sprout.log", got)
	}
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := zerolog.New(&buf).With().Str("component", "test").Logger()

	done := LogOperationStart(logger, "build")
	done()

	out := buf.String()
	if !strings.Contains(out, "Operation started") || !strings.Contains(out, "Operation completed") {
		t.Errorf("expected start and completion entries, got %s", out)
	}
	if !strings.Contains(out, `"operation":"build"`) {
		t.Errorf("expected operation field, got %s", out)
	}
}
