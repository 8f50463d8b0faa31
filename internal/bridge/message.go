// ABOUTME: Message record and the per-message delivery-status table
// ABOUTME: Messages are indexed by local id and by external id once assigned

package bridge

import (
	"time"

	"github.com/2389/handoff-bridge/internal/platform"
)

// Message is a single chat line tracked by the bridge. LocalID is assigned
// on the bot-platform side and is stable; ExternalID is assigned by the
// live-chat service once it accepts the message.
type Message struct {
	LocalID    string
	ExternalID string
	Origin     platform.Origin
	Text       string
	Media      *platform.MediaDescriptor
	Options    []platform.Option
	Status     platform.Status
	CreatedAt  time.Time
}

// table holds the messages of the current session. It is append-only for a
// given origin; cross-origin ordering follows delivery order.
type table struct {
	byLocal    map[string]*Message
	byExternal map[string]string // externalID -> localID
	order      []string          // localIDs in observation order
}

func newTable() *table {
	return &table{
		byLocal:    make(map[string]*Message),
		byExternal: make(map[string]string),
	}
}

func (t *table) add(m *Message) {
	// A local id is tracked at most once; callers resolve before adding.
	if _, ok := t.byLocal[m.LocalID]; ok {
		return
	}
	t.byLocal[m.LocalID] = m
	t.order = append(t.order, m.LocalID)
	if m.ExternalID != "" {
		t.byExternal[m.ExternalID] = m.LocalID
	}
}

func (t *table) bindExternal(localID, externalID string) {
	if m, ok := t.byLocal[localID]; ok {
		m.ExternalID = externalID
		t.byExternal[externalID] = localID
	}
}

func (t *table) get(localID string) (*Message, bool) {
	m, ok := t.byLocal[localID]
	return m, ok
}

func (t *table) getByExternal(externalID string) (*Message, bool) {
	localID, ok := t.byExternal[externalID]
	if !ok {
		return nil, false
	}
	return t.get(localID)
}

func (t *table) remove(localID string) {
	m, ok := t.byLocal[localID]
	if !ok {
		return
	}
	delete(t.byLocal, localID)
	if m.ExternalID != "" {
		delete(t.byExternal, m.ExternalID)
	}
	for i, id := range t.order {
		if id == localID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *table) all() []*Message {
	out := make([]*Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byLocal[id])
	}
	return out
}
