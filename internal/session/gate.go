package session

import "sync"

// InputGate tracks whether the client currently believes the child is
// awaiting stdin. awaiting_input edges must strictly alternate per session,
// so both prompt sources (sentinel and missing-newline heuristic) funnel
// through the gate and duplicate edges are suppressed.
type InputGate struct {
	mu       sync.Mutex
	awaiting bool
}

// Set transitions the gate to v and reports whether an edge should be
// emitted to the client.
func (g *InputGate) Set(v bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.awaiting == v {
		return false
	}
	g.awaiting = v
	return true
}

// Awaiting reports the current gate state.
func (g *InputGate) Awaiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.awaiting
}
