// ABOUTME: PersistentStateStore interface and data types for session markers
// ABOUTME: Holds lastClosedTime, previousToken, and the pending survey

package statestore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested key has no stored value.
var ErrNotFound = errors.New("not found")

// Survey is the post-chat artifact persisted across reloads until the user
// acknowledges it. Content is markdown, rendered when shown.
type Survey struct {
	Pending bool   `json:"pending"`
	Content string `json:"content"`
}

// Store is the persistent key/value store for small session markers. Keys
// are single-writer in practice: one active tab drives writes, with the
// chat-open Marker as the cross-tab signal consulted before mutating.
type Store interface {
	// LastClosedTime returns when the previous session closed.
	// Returns ErrNotFound when no session has closed yet.
	LastClosedTime(ctx context.Context) (time.Time, error)
	SetLastClosedTime(ctx context.Context, t time.Time) error

	// PreviousToken returns the auth token captured from a prior session,
	// used to authorize transcript downloads after a reload.
	PreviousToken(ctx context.Context) (string, error)
	SetPreviousToken(ctx context.Context, token string) error

	// Survey returns the persisted survey. Returns ErrNotFound when none
	// is pending.
	Survey(ctx context.Context) (*Survey, error)
	SetSurvey(ctx context.Context, s *Survey) error
	ClearSurvey(ctx context.Context) error

	Close() error
}

// Marker is the browser-local "a chat is open" signal (a cookie or
// equivalent in the original environment). It must agree with the session
// state after every transition.
type Marker interface {
	IsOpen() bool
	SetOpen(open bool)
}

// MemoryMarker is an in-process Marker. Safe for concurrent use; the close
// fallback timer may flip it off a different goroutine.
type MemoryMarker struct {
	mu   sync.Mutex
	open bool
}

func (m *MemoryMarker) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *MemoryMarker) SetOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}
