// Package errors defines the error taxonomy shared by the queue, router,
// node runtime and engine packages.
package errors

import "fmt"

// Kind closes the set of error categories the engine distinguishes.
type Kind string

const (
	// KindConfiguration covers a missing required field, an unknown runtime
	// kind, or an invalid expression discovered at validation/initialize time.
	KindConfiguration Kind = "configuration"
	// KindGraph covers a dangling connection endpoint or a disallowed cycle.
	KindGraph Kind = "graph"
	// KindCompilation covers a script/expression that failed to compile.
	KindCompilation Kind = "compilation"
	// KindRuntime covers a script/expression that raised while evaluating.
	KindRuntime Kind = "runtime"
	// KindTimeout covers a workflow wait that exceeded its budget.
	KindTimeout Kind = "timeout"
	// KindBudget covers a node whose retry budget was exhausted.
	KindBudget Kind = "budget"
	// KindCancelled covers a node or run terminated by external cancellation.
	KindCancelled Kind = "cancelled"
	// KindStaleLease covers a Complete/Abandon call against an unknown or
	// already-released lease id.
	KindStaleLease Kind = "stale_lease"
)

// Error is the engine's error type. NodeID is populated when the error is
// attributable to a specific node; the constructors in this package leave
// RunID empty.
type Error struct {
	Kind    Kind
	RunID   string
	NodeID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind alone, e.g. errors.Is(err, &Error{Kind: KindStaleLease}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, nodeID, message string, cause error) *Error {
	return &Error{Kind: kind, NodeID: nodeID, Message: message, Cause: cause}
}

func Configuration(nodeID, message string) *Error { return New(KindConfiguration, nodeID, message, nil) }
func Graph(message string) *Error                 { return New(KindGraph, "", message, nil) }
func Compilation(nodeID, message string, cause error) *Error {
	return New(KindCompilation, nodeID, message, cause)
}
func Runtime(nodeID, message string, cause error) *Error { return New(KindRuntime, nodeID, message, cause) }
func Timeout(message string) *Error                      { return New(KindTimeout, "", message, nil) }
func Budget(nodeID, message string) *Error               { return New(KindBudget, nodeID, message, nil) }
func Cancelled(nodeID, message string) *Error            { return New(KindCancelled, nodeID, message, nil) }
func StaleLease(message string) *Error                   { return New(KindStaleLease, "", message, nil) }

// ErrStaleLease is a sentinel usable with errors.Is for the common case of a
// Complete/Abandon against a lease that has already been released or reaped.
var ErrStaleLease = &Error{Kind: KindStaleLease}
