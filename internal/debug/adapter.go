// Package debug translates backend debugger dialects (gdb/MI, jdb, delve,
// and the line-JSON shim protocol spoken by the python and JavaScript
// debug shims) into one uniform command/event schema. The supervisor holds
// an Adapter and never inspects which backend is behind it.
package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/Pratham2994/OmniCompiler/internal/session"
)

// EventKind enumerates uniform adapter events.
type EventKind string

const (
	EventPaused     EventKind = "paused"
	EventException  EventKind = "exception"
	EventOutput     EventKind = "output"
	EventAwaitInput EventKind = "await_input"
	EventEvaluate   EventKind = "evaluate_result"
	EventTerminated EventKind = "terminated"
)

// Frame is one stack frame of a paused snapshot.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Paused is the snapshot delivered on every stop: top frame location plus
// the full stack and stringified locals. Values are opaque strings.
type Paused struct {
	File     string            `json:"file"`
	Line     int               `json:"line"`
	Function string            `json:"function"`
	Stack    []Frame           `json:"stack"`
	Locals   map[string]string `json:"locals"`
}

// Exception carries a backend-reported exception.
type Exception struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Output is inferior output the backend delivers out of band.
type Output struct {
	Stream string `json:"stream"`
	Data   string `json:"data"`
}

// Event is one uniform adapter event. Exactly one payload field matching
// Kind is set.
type Event struct {
	Kind      EventKind
	Paused    *Paused
	Exception *Exception
	Output    *Output
	Prompt    string
	Reason    string
}

// ErrNotPaused is returned by Evaluate when the backend is not stopped.
var ErrNotPaused = errors.New("not paused")

// Adapter is the uniform debugger interface. Implementations serialize
// backend writes internally; callers may issue commands from one goroutine
// only (the supervisor's command loop).
type Adapter interface {
	// Start applies the session's initial breakpoints and launches the
	// target. Events begin flowing on Events() afterwards.
	Start(ctx context.Context) error

	// Events delivers uniform events until the backend terminates; the
	// channel is closed after the terminated event.
	Events() <-chan Event

	Continue(ctx context.Context) error
	Next(ctx context.Context) error
	StepIn(ctx context.Context) error
	StepOut(ctx context.Context) error

	// AddBreakpoint syncs one breakpoint to the backend and returns the
	// backend-assigned id once applied.
	AddBreakpoint(ctx context.Context, file string, line int) (string, error)

	// RemoveBreakpoint removes by location (or explicit id) and returns the
	// id that was cleared.
	RemoveBreakpoint(ctx context.Context, file string, line int, id string) (string, error)

	// Evaluate evaluates an expression against the paused frame.
	Evaluate(ctx context.Context, expr string) (string, error)

	// SendStdin forwards program input for backends with a side channel to
	// the inferior; backends without one ignore it.
	SendStdin(data string) error

	// Stop sends the backend its quit command without awaiting a response.
	Stop()
}

// New builds the adapter for a debug session whose backend was spawned by
// the sandbox launcher.
func New(s *session.Session, cmdTimeout CommandTimeout) (Adapter, error) {
	if s.Debug == nil {
		return nil, fmt.Errorf("debug session missing backend process")
	}
	switch s.Lang {
	case session.LangCpp:
		return newGDBAdapter(s, cmdTimeout), nil
	case session.LangJava:
		return newJDBAdapter(s, cmdTimeout), nil
	case session.LangGo:
		return newDelveAdapter(s, cmdTimeout), nil
	case session.LangPython, session.LangJavaScript:
		return newShimAdapter(s, cmdTimeout), nil
	default:
		return nil, fmt.Errorf("debug not implemented for lang=%s", s.Lang)
	}
}
