// Package connection implements the MCP connection lifecycle state machine
// (§4.4): Disconnected → Initializing → Ready → Closing → Closed, plus the
// initialize/initialized handshake and capability-gated Call/Notify.
package connection

import "fmt"

// State is the typestate tag for a connection's lifecycle (§3). Go has no
// compile-time typestate parameters, so this is the "runtime tagged
// variant plus precondition check" strategy from §9 Design Notes.
type State int

const (
	StateDisconnected State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IllegalStateError reports a call attempted in a state that forbids it
// (§4.4 table).
type IllegalStateError struct {
	Operation string
	Current   State
	Allowed   []State
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("connection: %s not allowed in state %s (requires %v)", e.Operation, e.Current, e.Allowed)
}

func allowed(state State, operation string, ok ...State) error {
	for _, s := range ok {
		if state == s {
			return nil
		}
	}
	return &IllegalStateError{Operation: operation, Current: state, Allowed: ok}
}
