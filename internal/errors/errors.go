// Package errors provides structured error types for tasksync.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for tasksync.
const (
	// Validation errors
	CodeSelectorInvalid Code = "SELECTOR_INVALID"
	CodeKindUnknown     Code = "KIND_UNKNOWN"

	// Remote errors
	CodeRemoteNotFound    Code = "REMOTE_NOT_FOUND"
	CodeRemoteForbidden   Code = "REMOTE_FORBIDDEN"
	CodeCursorExpired     Code = "SYNC_CURSOR_EXPIRED"
	CodeRemoteUnavailable Code = "REMOTE_UNAVAILABLE"

	// Store errors
	CodeStoreNotFound Code = "STORE_NOT_FOUND"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryForbidden
	CategoryConflict
	CategoryInternal
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeSelectorInvalid:   CategoryBadRequest,
	CodeKindUnknown:       CategoryBadRequest,
	CodeRemoteNotFound:    CategoryNotFound,
	CodeRemoteForbidden:   CategoryForbidden,
	CodeCursorExpired:     CategoryConflict,
	CodeRemoteUnavailable: CategoryUnavailable,
	CodeStoreNotFound:     CategoryNotFound,
	CodeConfigInvalid:     CategoryBadRequest,
	CodeConfigMissing:     CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryForbidden:
		return 403
	case CategoryConflict:
		return 412
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// SyncError is the structured error type for tasksync.
type SyncError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`

	// Cursor is the fresh event cursor handed back with CodeCursorExpired.
	Cursor string `json:"cursor,omitempty"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *SyncError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *SyncError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *SyncError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *SyncError) MarshalJSON() ([]byte, error) {
	type alias SyncError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a SyncError with the same code.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *SyncError) WithCause(err error) *SyncError {
	cp := *e
	cp.Cause = err
	return &cp
}

// --- Error constructors ---

// ErrSelectorInvalid returns an error for workspace or project selectors
// that match nothing on the remote side. scope is "workspace" or "project".
// A single bad selector is named on its own; several are listed together.
func ErrSelectorInvalid(scope string, bad []string) *SyncError {
	what := fmt.Sprintf("specified %ss are not valid: %s", scope, strings.Join(bad, ", "))
	if len(bad) == 1 {
		what = fmt.Sprintf("%s is not a remote %s", bad[0], scope)
	}
	return &SyncError{
		Code: CodeSelectorInvalid,
		What: what,
		Why:  fmt.Sprintf("Selectors are matched against both the remote %s id and its name", scope),
		Fix:  fmt.Sprintf("Check the --%s values against the remote service", scope),
	}
}

// ErrKindUnknown returns an error for an include/exclude kind name that is not synced.
func ErrKindUnknown(name string) *SyncError {
	return &SyncError{
		Code: CodeKindUnknown,
		What: fmt.Sprintf("%s is not a synced kind", name),
		Fix:  "Use one of: workspace, user, tag, team, project, task, story, attachment",
	}
}

// ErrRemoteNotFound returns an error when a remote object no longer exists.
func ErrRemoteNotFound(resource string) *SyncError {
	return &SyncError{
		Code: CodeRemoteNotFound,
		What: fmt.Sprintf("remote object %s not found", resource),
	}
}

// ErrRemoteForbidden returns an error when a remote object is not accessible.
func ErrRemoteForbidden(resource string) *SyncError {
	return &SyncError{
		Code: CodeRemoteForbidden,
		What: fmt.Sprintf("access to remote object %s is forbidden", resource),
		Why:  "The token in use cannot read this object",
	}
}

// ErrCursorExpired returns an error carrying the fresh cursor issued by the
// remote side when a stored cursor was rejected.
func ErrCursorExpired(resource, fresh string) *SyncError {
	return &SyncError{
		Code:   CodeCursorExpired,
		What:   fmt.Sprintf("event cursor for %s expired", resource),
		Why:    "The remote side no longer accepts the stored cursor and issued a new one",
		Cursor: fresh,
	}
}

// ErrRemoteUnavailable returns an error when the remote service cannot be reached.
func ErrRemoteUnavailable(cause error) *SyncError {
	return &SyncError{
		Code:  CodeRemoteUnavailable,
		What:  "remote service unavailable",
		Fix:   "Retry the sync later; records already committed are kept",
		Cause: cause,
	}
}

// ErrStoreNotFound returns an error when no local row matches a remote id.
func ErrStoreNotFound(kind, remoteID string) *SyncError {
	return &SyncError{
		Code: CodeStoreNotFound,
		What: fmt.Sprintf("no local %s with remote id %s", kind, remoteID),
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *SyncError {
	return &SyncError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .tasksync/config.yaml and fix the invalid field",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *SyncError {
	return &SyncError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
		Why:  "This field is required but not set in configuration",
		Fix:  fmt.Sprintf("Add '%s' to .tasksync/config.yaml or set it in the environment", field),
	}
}

// AsSyncError attempts to convert an error to a SyncError.
// Returns nil if the error is not a SyncError.
func AsSyncError(err error) *SyncError {
	var syncErr *SyncError
	if stderrors.As(err, &syncErr) {
		return syncErr
	}
	return nil
}

// HasCode reports whether err wraps a SyncError with the given code.
func HasCode(err error, code Code) bool {
	if e := AsSyncError(err); e != nil {
		return e.Code == code
	}
	return false
}

// IsGone reports whether the remote object is not found or not accessible.
func IsGone(err error) bool {
	return HasCode(err, CodeRemoteNotFound) || HasCode(err, CodeRemoteForbidden)
}

// FreshCursor returns the cursor carried by an expired-cursor error.
func FreshCursor(err error) (string, bool) {
	if e := AsSyncError(err); e != nil && e.Code == CodeCursorExpired {
		return e.Cursor, true
	}
	return "", false
}

// Wrap wraps a generic error into a SyncError with unknown code.
func Wrap(err error, what string) *SyncError {
	return &SyncError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
