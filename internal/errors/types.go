// Package errors defines the structured error taxonomy shared by every burrow
// package: compilation, initialization, evaluation, hydration, sanitization,
// front-matter, cache, config and internal failures.
//
// Errors carry a type, a stable code, an optional source location and a cause
// chain that survives errors.Is / errors.As. Warnings (sanitization and
// front-matter) use the same type so they can be logged uniformly, but they
// are never returned to callers.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	TypeCompilation    ErrorType = "compilation"
	TypeInitialization ErrorType = "initialization"
	TypeEvaluation     ErrorType = "evaluation"
	TypeHydration      ErrorType = "hydration"
	TypeSanitization   ErrorType = "sanitization"
	TypeFrontmatter    ErrorType = "frontmatter"
	TypeCache          ErrorType = "cache"
	TypeConfig         ErrorType = "config"
	TypeInternal       ErrorType = "internal"
)

// Common error codes.
const (
	CodeCompileFailed     = "ERR_COMPILE_FAILED"
	CodeNotInitialized    = "ERR_NOT_INITIALIZED"
	CodeInitFailed        = "ERR_INIT_FAILED"
	CodeDecodeFailed      = "ERR_DECODE_FAILED"
	CodeLinkFailed        = "ERR_LINK_FAILED"
	CodeImportFailed      = "ERR_IMPORT_FAILED"
	CodeRenderFailed      = "ERR_RENDER_FAILED"
	CodeScopeKeyStripped  = "ERR_SCOPE_KEY_STRIPPED"
	CodeFrontmatterFailed = "ERR_FRONTMATTER_INVALID"
	CodeCacheClosed       = "ERR_CACHE_CLOSED"
	CodeCacheConfig       = "ERR_CACHE_CONFIG"
	CodeConfigInvalid     = "ERR_CONFIG_INVALID"
	CodeInternal          = "ERR_INTERNAL"
)

// ErrNotInitialized is returned by synchronous entry points when the compiler
// backend has not finished loading. Call Initialize and retry.
var ErrNotInitialized = &Error{
	Type:        TypeInitialization,
	Code:        CodeNotInitialized,
	Message:     "compiler backend is not initialized",
	Recoverable: true,
}

// Error is a structured error with context.
type Error struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]any
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so sentinels like ErrNotInitialized work with
// errors.Is even after wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *Error) WithLocation(filePath string, line, column int) *Error {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// New creates an error of the given type without a cause.
func New(errType ErrorType, code, message string) *Error {
	return &Error{
		Type:        errType,
		Code:        code,
		Message:     message,
		Recoverable: recoverable(errType),
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return New(TypeConfig, code, message)
}

// NewWarning creates a non-fatal sanitization or front-matter diagnostic.
func NewWarning(errType ErrorType, code, message string) *Error {
	e := New(errType, code, message)
	e.Recoverable = true
	return e
}

func recoverable(errType ErrorType) bool {
	switch errType {
	case TypeCompilation, TypeInitialization, TypeSanitization, TypeFrontmatter:
		return true
	default:
		return false
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}

	return false
}

// HasType reports whether any error in the chain has the given type.
func HasType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsCompilation checks if an error originated in the compiler.
func IsCompilation(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) || HasType(err, TypeCompilation)
}
