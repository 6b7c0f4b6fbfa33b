// pkg/errors/errors_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Test error creation, wrapping, validation helpers and code matching

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/PatWie/sprout/pkg/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    errors.ErrorCode
		message string
		wantStr string
	}{
		{
			name:    "not_found_error",
			code:    errors.ErrNotFound,
			message: "module not found",
			wantStr: "[NOT_FOUND] module not found",
		},
		{
			name:    "integrity_error",
			code:    errors.ErrIntegrity,
			message: "checksum mismatch",
			wantStr: "[INTEGRITY] checksum mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.New(tt.code, tt.message)

			if err.Code != tt.code {
				t.Errorf("New() code = %v, want %v", err.Code, tt.code)
			}
			if err.Details == nil {
				t.Error("New() details should be initialized")
			}
			if got := err.Error(); got != tt.wantStr {
				t.Errorf("Error() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	baseErr := stderrors.New("permission denied")

	t.Run("wrap_non_nil_error", func(t *testing.T) {
		err := errors.Wrapf(baseErr, errors.ErrFilesystem, "cannot read %s", "/x")

		if err.Wrapped != baseErr {
			t.Error("Wrapf() should preserve wrapped error")
		}
		wantStr := "[FILESYSTEM] cannot read /x: permission denied"
		if got := err.Error(); got != wantStr {
			t.Errorf("Error() = %q, want %q", got, wantStr)
		}
		if !stderrors.Is(err, baseErr) {
			t.Error("errors.Is should reach the wrapped error")
		}
	})

	t.Run("wrap_nil_error_returns_nil", func(t *testing.T) {
		if err := errors.Wrap(nil, errors.ErrInternal, "internal error"); err != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})
}

func TestIs(t *testing.T) {
	err1 := errors.New(errors.ErrBuild, "a failed")
	err2 := errors.New(errors.ErrBuild, "b failed")
	err3 := errors.New(errors.ErrFetch, "c failed")

	if !stderrors.Is(err1, err2) {
		t.Error("errors.Is() should match on code")
	}
	if stderrors.Is(err1, err3) {
		t.Error("errors.Is() should not match different codes")
	}

	wrapped := fmt.Errorf("outer: %w", err1)
	if !errors.IsErrorCode(wrapped, errors.ErrBuild) {
		t.Error("IsErrorCode() should see through fmt wrapping")
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := errors.GetErrorCode(stderrors.New("plain")); got != errors.ErrUnknown {
		t.Errorf("GetErrorCode() = %v, want %v", got, errors.ErrUnknown)
	}
	if got := errors.GetErrorCode(errors.New(errors.ErrLockfileConflict, "x")); got != errors.ErrLockfileConflict {
		t.Errorf("GetErrorCode() = %v, want %v", got, errors.ErrLockfileConflict)
	}
	if errors.GetErrorDetails(nil) != nil {
		t.Error("GetErrorDetails(nil) should be nil")
	}
}

func TestCycle(t *testing.T) {
	err := errors.Cycle([]string{"a", "b", "a"})

	if got := errors.ValidationKindOf(err); got != errors.KindCycle {
		t.Errorf("ValidationKindOf() = %q, want %q", got, errors.KindCycle)
	}
	want := "[VALIDATION] dependency cycle detected: a -> b -> a"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if mods := errors.SortedModulesOf(err); fmt.Sprint(mods) != "[a a b]" {
		t.Errorf("SortedModulesOf() = %v", mods)
	}
}

func TestUnknownModule(t *testing.T) {
	tests := []struct {
		name        string
		ref, from   string
		suggestions []string
		want        string
	}{
		{
			name: "bare_reference",
			ref:  "rg",
			want: `[VALIDATION] unknown module "rg"`,
		},
		{
			name:        "dependency_with_suggestion",
			ref:         "rustt",
			from:        "ripgrep",
			suggestions: []string{"rust"},
			want:        `[VALIDATION] module "ripgrep" depends on unknown module "rustt" (did you mean rust?)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.UnknownModule(tt.ref, tt.from, tt.suggestions)
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			if errors.ValidationKindOf(err) != errors.KindUnknownModule {
				t.Errorf("unexpected kind %q", errors.ValidationKindOf(err))
			}
		})
	}

	if errors.ValidationKindOf(errors.New(errors.ErrBuild, "x")) != "" {
		t.Error("ValidationKindOf() should be empty for non-validation errors")
	}
}
