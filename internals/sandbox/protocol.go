// Package sandbox runs caller-supplied JavaScript on the far side of an
// asynchronous message boundary.
//
// The host side ([Executor]) never calls the engine directly. Each call gets a
// fresh correlation id, a [Request] is sent across a [Boundary], and the
// matching [Response] is awaited. Responses may arrive in any order;
// responses whose id is not pending are dropped.
//
// The far side ([Worker]) evaluates every request in a new goja runtime that
// exposes nothing but a console object.
package sandbox

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when no response arrives before the call deadline.
	ErrTimeout = errors.New("sandbox timeout")

	// ErrBoundaryClosed is returned when the boundary can no longer carry messages.
	ErrBoundaryClosed = errors.New("sandbox boundary closed")
)

type Request struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Response carries the script result already rendered as text by the far
// side; no engine values cross the boundary.
type Response struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// ScriptError carries the error string reported by the sandbox.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

// Boundary carries requests to the sandbox. Responses come back
// asynchronously through whatever channel the boundary exposes to
// [Executor.Listen].
type Boundary interface {
	Send(ctx context.Context, req Request) error
}
