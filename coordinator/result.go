package coordinator

import "fmt"

// Error codes returned by coordinator operations.
const (
	CodeInvalidTransition = "invalid_transition"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeValidation        = "validation"
	CodeProvider          = "provider"
	CodeInternal          = "internal"
)

// Error is a coordinator failure with a stable machine-readable code.
// Retryable marks provider failures worth re-running through the job
// queue.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Errf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapErr(code string, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func ProviderErr(cause error, message string) *Error {
	return &Error{Code: CodeProvider, Message: message, Retryable: true, cause: cause}
}

// Result is the uniform outcome of every coordinator operation: either
// a value or an Error, never both.
type Result[T any] struct {
	Value T
	Err   *Error
}

func Ok[T any](v T) Result[T]        { return Result[T]{Value: v} }
func Fail[T any](err *Error) Result[T] { return Result[T]{Err: err} }

func (r Result[T]) OK() bool { return r.Err == nil }
