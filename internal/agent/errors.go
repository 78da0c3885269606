package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an Error for callers that need to branch on failure
// category rather than match against a specific message.
type ErrorKind string

const (
	KindCancelled          ErrorKind = "cancelled"
	KindTimeout            ErrorKind = "timeout"
	KindTransport          ErrorKind = "transport"
	KindProtocol           ErrorKind = "protocol"
	KindRPC                ErrorKind = "rpc"
	KindClosed             ErrorKind = "closed"
	KindNotInitialized     ErrorKind = "not_initialized"
	KindAlreadyInitialized ErrorKind = "already_initialized"
	KindUnknownTool        ErrorKind = "unknown_tool"
	KindUnknownAgent       ErrorKind = "unknown_agent"
	KindDuplicateTool      ErrorKind = "duplicate_tool"
	KindPolicyDenied       ErrorKind = "policy_denied"
	KindMaxDepthExceeded   ErrorKind = "max_depth_exceeded"
	KindMaxIterations      ErrorKind = "max_iterations_exceeded"
	KindProvider           ErrorKind = "provider"
	KindConfiguration      ErrorKind = "configuration"
)

// Error is the structured error type returned by the agent loop (a subagent
// run passes its child loop's *Error through unchanged). Phase and
// Iteration are populated when the failure
// occurred inside a running loop; both are zero-valued otherwise.
type Error struct {
	Kind ErrorKind

	// RPCCode and Message carry the detail for KindRPC (a JSON-RPC error
	// object) and KindProvider (a wire-level provider failure).
	RPCCode int
	Message string

	Phase     Phase
	Iteration int

	Cause error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		if e.Message != "" {
			return fmt.Sprintf("agent: %s at %s (iteration %d): %s", e.Kind, e.Phase, e.Iteration, e.Message)
		}
		if e.Cause != nil {
			return fmt.Sprintf("agent: %s at %s (iteration %d): %v", e.Kind, e.Phase, e.Iteration, e.Cause)
		}
		return fmt.Sprintf("agent: %s at %s (iteration %d)", e.Kind, e.Phase, e.Iteration)
	}
	if e.Kind == KindRPC {
		return fmt.Sprintf("agent: rpc error %d: %s", e.RPCCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("agent: %s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("agent: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("agent: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &Error{Kind: KindX}) to match any *Error sharing
// that Kind, ignoring the other fields.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// NewError constructs an Error of the given kind wrapping cause.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// WithPhase attaches loop phase/iteration context to an Error, returning a
// new value so the original is never mutated out from under a caller still
// holding it.
func (e *Error) WithPhase(phase Phase, iteration int) *Error {
	cp := *e
	cp.Phase = phase
	cp.Iteration = iteration
	return &cp
}

// KindOf extracts the ErrorKind from err if it is, or wraps, an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Phase is a distinct step in the agentic loop's execution.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseRateLimit    Phase = "rate_limit"
	PhaseComplete     Phase = "complete"
	PhaseExecuteTools Phase = "execute_tools"
	PhaseContinue     Phase = "continue"
	PhaseDone         Phase = "done"
)
