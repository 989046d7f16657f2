package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

var (
	// ErrContextInvalidated is returned by any operation on a Context whose
	// owning Sandbox has been collected.
	ErrContextInvalidated = errors.New("context has been invalidated")

	// ErrDisposed is wrapped by DisposedError.
	ErrDisposed = errors.New("sandbox handle disposed")

	// ErrInterrupted is wrapped by RuntimeError when a run was stopped with
	// Context.Interrupt.
	ErrInterrupted = errors.New("execution interrupted")
)

// ArgumentError reports a wrong number or type of arguments passed to a
// constructor or method. It is raised before any state is touched.
type ArgumentError struct {
	Op      string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// TypeError reports a RunInContext target that is not a Context built by
// this package.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string {
	return "type error: " + e.Message
}

// CompileError reports source the parser rejected.
type CompileError struct {
	Message    string
	Filename   string
	Line       int
	Column     int
	SourceLine string
}

func (e *CompileError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("SyntaxError: %s: %s", e.Filename, e.Message)
	}
	return fmt.Sprintf("SyntaxError: %s:%d:%d: %s", e.Filename, e.Line, e.Column, e.Message)
}

// RuntimeError carries the value thrown by guest code. Value is forwarded
// as-is so hosts can inspect structured error objects.
type RuntimeError struct {
	Value goja.Value
	Stack string
	cause error

	// reason is the value passed to Interrupt, set only for interrupts.
	reason any
}

func (e *RuntimeError) Error() string {
	if e.Value == nil {
		return "uncaught exception"
	}
	return "uncaught exception: " + e.Value.String()
}

func (e *RuntimeError) Unwrap() error {
	return e.cause
}

// DisposedError is returned by handle methods called after Dispose.
type DisposedError struct {
	Method string
}

func (e *DisposedError) Error() string {
	return fmt.Sprintf("called %s() after dispose()", e.Method)
}

func (e *DisposedError) Unwrap() error {
	return ErrDisposed
}

func newRuntimeError(err error) error {
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return &RuntimeError{
			Value:  nil,
			Stack:  intr.String(),
			cause:  fmt.Errorf("%w: %v", ErrInterrupted, intr.Value()),
			reason: intr.Value(),
		}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &RuntimeError{
			Value: ex.Value(),
			Stack: ex.String(),
			cause: ex,
		}
	}

	return err
}

// sourceLine returns the 1-based line of src, or "" when out of range.
func sourceLine(src string, line int) string {
	if line < 1 {
		return ""
	}
	lines := strings.Split(src, "\n")
	if line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[line-1], "\r")
}
