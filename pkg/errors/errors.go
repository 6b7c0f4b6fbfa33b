package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrCanceled     ErrorCode = "CANCELED"

	// Configuration errors
	ErrConfigLoad ErrorCode = "CONFIG_LOAD"

	// Manifest-level consistency; fatal for the whole invocation
	ErrValidation ErrorCode = "VALIDATION"

	// Declared checksum does not match fetched content
	ErrIntegrity ErrorCode = "INTEGRITY"

	// Unreadable/unwritable path or broken symlink target
	ErrFilesystem ErrorCode = "FILESYSTEM"

	// Nonzero exit from a stage script
	ErrBuild ErrorCode = "BUILD"

	// Source acquisition failure that is not an integrity problem
	ErrFetch ErrorCode = "FETCH"

	// On-disk lockfile changed since it was loaded
	ErrLockfileConflict ErrorCode = "LOCKFILE_CONFLICT"
)

// ValidationKind narrows down a VALIDATION error.
type ValidationKind string

const (
	KindCycle              ValidationKind = "cycle"
	KindUnknownModule      ValidationKind = "unknown_module"
	KindDuplicateModule    ValidationKind = "duplicate_module"
	KindUnknownEnvironment ValidationKind = "unknown_environment"
	KindInvalidModule      ValidationKind = "invalid_module"
	KindSyntax             ValidationKind = "syntax"
)

// Detail keys used across packages
const (
	DetailKind     = "kind"
	DetailModules  = "modules"
	DetailModule   = "module"
	DetailPath     = "path"
	DetailStage    = "stage"
	DetailExitCode = "exit_code"
	DetailLogPath  = "log_path"
	DetailExpected = "expected"
	DetailActual   = "actual"
	DetailSuggest  = "suggestions"
)

// SproutError represents a structured error with code and details
type SproutError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *SproutError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *SproutError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target carries the same code.
func (e *SproutError) Is(target error) bool {
	var targetErr *SproutError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new SproutError with the given code and message
func New(code ErrorCode, message string) *SproutError {
	return &SproutError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new SproutError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *SproutError {
	return &SproutError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a SproutError
func Wrap(err error, code ErrorCode, message string) *SproutError {
	if err == nil {
		return nil
	}
	return &SproutError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *SproutError {
	if err == nil {
		return nil
	}
	return &SproutError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *SproutError) WithDetail(key string, value interface{}) *SproutError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *SproutError) WithDetails(details map[string]interface{}) *SproutError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var sproutErr *SproutError
	if errors.As(err, &sproutErr) {
		return sproutErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a SproutError
func GetErrorCode(err error) ErrorCode {
	var sproutErr *SproutError
	if errors.As(err, &sproutErr) {
		return sproutErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a SproutError
func GetErrorDetails(err error) map[string]interface{} {
	var sproutErr *SproutError
	if errors.As(err, &sproutErr) {
		return sproutErr.Details
	}
	return nil
}

// Validation builds a VALIDATION error of the given kind.
func Validation(kind ValidationKind, message string, modules ...string) *SproutError {
	return New(ErrValidation, message).
		WithDetail(DetailKind, kind).
		WithDetail(DetailModules, modules)
}

// Cycle reports a dependency cycle through the given modules, in traversal order.
func Cycle(modules []string) *SproutError {
	return Validation(KindCycle,
		fmt.Sprintf("dependency cycle detected: %s", strings.Join(modules, " -> ")),
		modules...)
}

// UnknownModule reports a reference from `from` to a module that is not declared.
// Suggestions, when present, are appended to the message.
func UnknownModule(ref, from string, suggestions []string) *SproutError {
	msg := fmt.Sprintf("unknown module %q", ref)
	if from != "" {
		msg = fmt.Sprintf("module %q depends on unknown module %q", from, ref)
	}
	if len(suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
	}
	e := Validation(KindUnknownModule, msg, ref)
	if len(suggestions) > 0 {
		e.WithDetail(DetailSuggest, suggestions)
	}
	return e
}

// ValidationKindOf returns the kind of a VALIDATION error, or "" for anything else.
func ValidationKindOf(err error) ValidationKind {
	if !IsErrorCode(err, ErrValidation) {
		return ""
	}
	kind, _ := GetErrorDetails(err)[DetailKind].(ValidationKind)
	return kind
}

// ModulesOf returns the modules recorded on an error.
func ModulesOf(err error) []string {
	mods, _ := GetErrorDetails(err)[DetailModules].([]string)
	return mods
}

// SortedModulesOf is ModulesOf with a stable order, for comparisons.
func SortedModulesOf(err error) []string {
	mods := append([]string(nil), ModulesOf(err)...)
	sort.Strings(mods)
	return mods
}
