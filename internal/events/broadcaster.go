// ABOUTME: In-memory fan-out broadcaster for public lifecycle notifications
// ABOUTME: Publishes named notifications to all subscribers of that name

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Notification is a public lifecycle notification re-published by the
// router for external consumers (analytics, embedding page, etc).
type Notification struct {
	// Name is the public notification name, e.g. NoteChatCreated.
	Name string

	// Payload carries the notification argument: a chat id for the
	// chat lifecycle names, a user id for presence names, ticket data
	// for NoteTicketCreated.
	Payload string
}

// Public notification names.
const (
	NoteChatCreated   = "chat:created"
	NoteChatClosed    = "chat:closed"
	NoteUserJoined    = "user:joined"
	NoteUserLeft      = "user:left"
	NoteTicketCreated = "ticket:created"
)

// Broadcaster provides in-memory pub/sub for Notifications. Subscribers
// register for a notification name and receive matching notifications as
// they are published.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Notification // name -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Notification),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for notifications with the given name.
// Returns a receive channel and a subscription ID for later unsubscription.
// The subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, name string) (<-chan Notification, string) {
	subID := uuid.New().String()
	ch := make(chan Notification, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[name]; !ok {
		b.subscribers[name] = make(map[string]chan Notification)
	}
	b.subscribers[name][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "name", name, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(name, subID)
	}()

	return ch, subID
}

// Publish sends a notification to all subscribers of its name.
// Non-blocking: the notification is dropped for subscribers whose channels
// are full.
func (b *Broadcaster) Publish(n Notification) {
	b.mu.RLock()
	subs, ok := b.subscribers[n.Name]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy channels under read lock to avoid holding it during sends.
	targets := make([]chan Notification, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- n:
		default:
			b.logger.Debug("dropped notification for slow subscriber", "name", n.Name)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(name, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[name]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, name)
	}

	b.logger.Debug("subscriber removed", "name", name, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, name)
	}

	b.logger.Debug("broadcaster closed")
}
