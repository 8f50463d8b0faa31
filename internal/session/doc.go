// ABOUTME: Package documentation for the session lifecycle controller
// ABOUTME: Describes the state machine and the guarantees it upholds

// Package session owns the lifecycle of a live-chat session: the state
// machine (Idle, Connecting, SearchingAgent, WaitingForAgent, Active,
// Closing, Closed), the escalation sequence that creates a chat from a
// bot conversation, restore after a page reload, and cleanup on close.
//
// At most one non-closed session exists at any time. Every state change
// keeps the browser-local open-chat marker in agreement with the state,
// so a reload can decide between restoring a chat and staying idle.
//
// Closing is two-phased: the controller asks the service to close and
// then waits for the service's own close event to finalize locally. A
// short fallback timer finalizes anyway when that event never arrives.
package session
