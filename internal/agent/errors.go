package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the execution core.
var (
	// ErrMaxSteps indicates the loop exceeded its per-run step limit.
	ErrMaxSteps = errors.New("max steps reached")

	// ErrCancelled indicates the run was cancelled by the user.
	ErrCancelled = errors.New("run cancelled")

	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution exceeded its deadline.
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrUserRejected indicates the approval gate denied a tool call.
	ErrUserRejected = errors.New("rejected by user")

	// ErrContextTooLarge indicates compaction failed and the context no
	// longer fits the model window.
	ErrContextTooLarge = errors.New("context too large")

	// ErrUnknownSubagent indicates a Task call named an undeclared sub-agent.
	ErrUnknownSubagent = errors.New("unknown subagent")
)

// ToolErrorKind categorizes recoverable tool failures. Recoverable errors
// are fed back to the model as tool messages so it can correct itself.
type ToolErrorKind string

const (
	// ToolErrorInvalidArgs indicates the arguments failed JSON parsing or
	// schema validation.
	ToolErrorInvalidArgs ToolErrorKind = "invalid_args"

	// ToolErrorExecution indicates the tool ran and reported failure.
	ToolErrorExecution ToolErrorKind = "execution"

	// ToolErrorTimeout indicates the tool was cancelled by its deadline.
	ToolErrorTimeout ToolErrorKind = "timeout"

	// ToolErrorRejected indicates the user denied approval.
	ToolErrorRejected ToolErrorKind = "rejected"
)

// ToolError is a recoverable failure of one tool call.
type ToolError struct {
	Kind       ToolErrorKind
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.ToolName != "" {
		return fmt.Sprintf("[tool:%s] %s: %s", e.Kind, e.ToolName, msg)
	}
	return fmt.Sprintf("[tool:%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// StreamError is a fatal failure of an in-flight LLM stream. The loop
// publishes Done(fatal_error) with the message but does not crash.
type StreamError struct {
	Step  int
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("llm stream failed at step %d: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Cause
}
