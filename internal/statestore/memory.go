// ABOUTME: In-memory Store implementation for testing and the simulator
// ABOUTME: Allows the engine to run without SQLite

package statestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu         sync.RWMutex
	lastClosed *time.Time
	prevToken  *string
	survey     *Survey
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LastClosedTime(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastClosed == nil {
		return time.Time{}, ErrNotFound
	}
	return *m.lastClosed, nil
}

func (m *MemoryStore) SetLastClosedTime(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastClosed = &t
	return nil
}

func (m *MemoryStore) PreviousToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prevToken == nil {
		return "", ErrNotFound
	}
	return *m.prevToken, nil
}

func (m *MemoryStore) SetPreviousToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prevToken = &token
	return nil
}

func (m *MemoryStore) Survey(ctx context.Context) (*Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.survey == nil {
		return nil, ErrNotFound
	}
	s := *m.survey
	return &s, nil
}

func (m *MemoryStore) SetSurvey(ctx context.Context, survey *Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *survey
	m.survey = &s
	return nil
}

func (m *MemoryStore) ClearSurvey(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.survey = nil
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
