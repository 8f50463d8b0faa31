// ABOUTME: Session type, lifecycle states, and session-level errors
// ABOUTME: At most one non-closed session exists per user context

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/2389/handoff-bridge/internal/platform"
)

// Session-level errors. Operations invalid for the current state are
// surfaced to the caller and never retried.
var (
	// ErrNoOpenChat means the operation requires an open chat session.
	ErrNoOpenChat = errors.New("no open chat")

	// ErrNoActiveChat means there is no active chat to close.
	ErrNoActiveChat = errors.New("no active chat")
)

// ConnectError wraps a failure in the start/restore sequence. It is
// produced at the single error boundary at the end of the chain; the UI is
// already restored out of connecting mode when the caller sees it.
type ConnectError struct {
	Step string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting chat (%s): %v", e.Step, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSearchingAgent
	StateWaitingForAgent
	StateActive
	StateClosing
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateConnecting:      "connecting",
	StateSearchingAgent:  "searching_agent",
	StateWaitingForAgent: "waiting_for_agent",
	StateActive:          "active",
	StateClosing:         "closing",
	StateClosed:          "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Open reports whether the state counts as an open chat. The browser-local
// marker must agree with this after every transition.
func (s State) Open() bool {
	return s != StateIdle && s != StateClosed
}

// Session represents one escalation attempt, from connecting through
// closed. The chat handle is owned exclusively by the session and is
// present only between agent search and closing.
type Session struct {
	ID         string
	State      State
	ChatHandle string
	Identity   platform.ChatIdentity
	Snapshot   platform.BotSnapshot
	AgentName  string
	StartedAt  time.Time
}
