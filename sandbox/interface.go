package sandbox

import (
	"context"
	"errors"
	"time"
)

// ExecuteRequest represents the parameters for one script run
type ExecuteRequest struct {
	SessionID  string // empty runs in a one-shot sandbox
	Code       string
	Filename   string
	TimeoutSec int // zero uses the executor default
}

// ExecuteResult represents the outcome of a script run. Guest failures are
// reported in Error, not as a Go error.
type ExecuteResult struct {
	SessionID string
	Value     any
	Display   string
	Console   []LogEntry
	Error     *ErrorInfo
	Duration  time.Duration
}

// LogEntry is one captured console call
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ErrorInfo describes a compile or runtime failure
type ErrorInfo struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Filename   string `json:"filename,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	SourceLine string `json:"source_line,omitempty"`
	Stack      string `json:"stack,omitempty"`
	Value      any    `json:"value,omitempty"`
}

// Error types reported in ErrorInfo.Type
const (
	ErrorTypeCompile     = "CompileError"
	ErrorTypeRuntime     = "RuntimeError"
	ErrorTypeInterrupted = "Interrupted"
	ErrorTypeInvalidated = "Invalidated"
)

// SandboxExecutor defines the interface for session-based script execution
type SandboxExecutor interface {
	CreateSession(ctx context.Context, globals map[string]any) (string, error)
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
	Globals(ctx context.Context, sessionID string) (map[string]any, error)
	CloseSession(ctx context.Context, sessionID string) error
}

var (
	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when executor.max_sessions is reached
	ErrTooManySessions = errors.New("too many sessions")
)

// newErrorInfo maps a run error to its reported form. It returns nil for
// errors that are not guest failures.
func newErrorInfo(err error) *ErrorInfo {
	var cerr *CompileError
	if errors.As(err, &cerr) {
		return &ErrorInfo{
			Type:       ErrorTypeCompile,
			Message:    cerr.Message,
			Filename:   cerr.Filename,
			Line:       cerr.Line,
			Column:     cerr.Column,
			SourceLine: cerr.SourceLine,
		}
	}

	if errors.Is(err, ErrContextInvalidated) {
		return &ErrorInfo{Type: ErrorTypeInvalidated, Message: err.Error()}
	}

	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		info := &ErrorInfo{
			Type:    ErrorTypeRuntime,
			Message: rerr.Error(),
			Stack:   rerr.Stack,
		}
		if errors.Is(rerr, ErrInterrupted) {
			info.Type = ErrorTypeInterrupted
			info.Message = rerr.Unwrap().Error()
		}
		if rerr.Value != nil {
			info.Value = rerr.Value.Export()
		}
		return info
	}

	return nil
}
