package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context. Location information of an
// inner *Error is carried forward so the outermost error still points at the
// offending source.
func Wrap(err error, errType ErrorType, code, message string) *Error {
	if err == nil {
		return nil
	}

	wrapped := &Error{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: recoverable(errType),
	}

	var inner *Error
	if errors.As(err, &inner) {
		wrapped.FilePath = inner.FilePath
		wrapped.Line = inner.Line
		wrapped.Column = inner.Column
	}

	var ce *CompileError
	if errors.As(err, &ce) && wrapped.FilePath == "" {
		wrapped.FilePath = ce.File
		wrapped.Line = ce.Line
		wrapped.Column = ce.Column
	}

	return wrapped
}

// WrapCompilation wraps a compiler failure under the adapter's subsystem prefix.
func WrapCompilation(err error) *Error {
	return Wrap(err, TypeCompilation, CodeCompileFailed, "mdx compiler: compilation failed")
}

// WrapEvaluation wraps a decode, link or execution failure of generated code.
func WrapEvaluation(err error, code, message string) *Error {
	return Wrap(err, TypeEvaluation, code, message)
}

// WrapHydration wraps a failure that happened while hydrating compiled code.
func WrapHydration(err error, message string) *Error {
	return Wrap(err, TypeHydration, CodeRenderFailed, message)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *Error {
	return Wrap(err, TypeInternal, code, message)
}

// GetErrorContext extracts context information from an *Error for logging.
func GetErrorContext(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		context := make(map[string]any, len(e.Context)+5)
		for k, v := range e.Context {
			context[k] = v
		}
		if e.FilePath != "" {
			context["file"] = e.FilePath
			if e.Line > 0 {
				context["line"] = e.Line
				if e.Column > 0 {
					context["column"] = e.Column
				}
			}
		}
		context["type"] = string(e.Type)
		context["code"] = e.Code
		context["recoverable"] = e.Recoverable
		return context
	}

	return map[string]any{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// Fields flattens GetErrorContext into logger key/value pairs.
func Fields(err error) []any {
	ctx := GetErrorContext(err)
	fields := make([]any, 0, len(ctx)*2)
	for k, v := range ctx {
		fields = append(fields, k, v)
	}
	return fields
}

// ExtractCause returns the innermost error in the chain.
func ExtractCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// FormatError formats an error for user display, appending compiler
// suggestions when the chain contains one.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	result := err.Error()

	var ce *CompileError
	if errors.As(err, &ce) {
		if ce.Context != "" {
			result += "\n\n" + ce.Context
		}
		if ce.Suggestion != "" {
			result += fmt.Sprintf("\n\nSuggestion: %s", ce.Suggestion)
		}
	}

	return result
}
