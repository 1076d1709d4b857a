package agent

import (
	"fmt"
	"strings"
)

// InfrastructureFailure wraps an error from the model backend itself. Unlike
// tool failures, which become failed action records, an unreachable backend
// means no planning or execution can proceed, so it propagates to whoever
// invoked the coordinator.
type InfrastructureFailure struct {
	Stage string // "planner", "executor", "judge"
	Err   error
}

func (e *InfrastructureFailure) Error() string {
	return fmt.Sprintf("%s backend failure: %v", e.Stage, e.Err)
}

func (e *InfrastructureFailure) Unwrap() error {
	return e.Err
}

// ToolExecutionFailure reports a tool-level error to the chat handler. It
// never aborts a run on its own; the action is recorded as failed and the
// next evaluation decides whether to retry.
type ToolExecutionFailure struct {
	Tool   string
	Output string
}

func (e *ToolExecutionFailure) Error() string {
	return fmt.Sprintf("tool '%s' failed: %s", e.Tool, e.Output)
}

// classifyError maps an error to a coarse type plus whether a retry is worth
// attempting
func classifyError(err error) (errorType string, retryable bool) {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout", true
	case strings.Contains(errStr, "HTTP") || strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return "transport_error", true
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429"):
		return "rate_limit", true
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "404"):
		return "not_found", false
	case strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return "auth_error", false
	default:
		return "unknown", false
	}
}
