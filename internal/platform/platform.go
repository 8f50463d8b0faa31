// ABOUTME: Shared vocabulary for the bot-platform and chat-service boundary
// ABOUTME: Defines origins, delivery statuses, media descriptors, and transcript entries

package platform

import (
	"errors"
	"time"
)

// ErrMediaNotAllowed is returned by ChatService.SendMedia when the service
// rejects the upload because of its file type, not because of a transport
// failure. Callers surface it to the user instead of marking the message failed.
var ErrMediaNotAllowed = errors.New("media type not allowed")

// Origin identifies which side of the conversation produced a message.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginAgent  Origin = "agent"
	OriginSystem Origin = "system"
)

// Status is the delivery state of a message on the live-chat side.
// Statuses advance monotonically (pending < sent < delivered < read);
// failed is reachable from any non-terminal state and is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders the monotonic statuses. Failed has no rank; it is
// handled explicitly by CanAdvance.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanAdvance reports whether a message in status s may transition to next.
// Out-of-order updates (e.g. a late "sent" after "delivered") are rejected
// so delivery state never regresses.
func (s Status) CanAdvance(next Status) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// MediaDescriptor describes a file attached to a message.
type MediaDescriptor struct {
	Name string
	URL  string
	MIME string
	Size int64
}

// MediaUpload is a file the user asked to send to the agent.
type MediaUpload struct {
	LocalID string
	Name    string
	MIME    string
	Size    int64
	Content []byte
}

// Option is a selectable choice attached to a message or a system prompt.
type Option struct {
	Label string
	Value string
}

// OptionKindTicket tags a system-message option that carries ticket form
// data. Options with any other kind are not consumed by the engine.
const OptionKindTicket = "ticket-data"

// SystemOption is an option the user selected inside a system message.
type SystemOption struct {
	Kind  string
	Label string
	Value string
}

// UserData identifies the end user at escalation time.
type UserData struct {
	UserID string
	Name   string
	Email  string
	Fields map[string]string
}

// EntryKind tags a transcript entry recovered from the bot platform.
type EntryKind string

const (
	EntryText           EntryKind = "text"
	EntryChoice         EntryKind = "choice"
	EntryExtendedChoice EntryKind = "extended_choice"
	EntryDownload       EntryKind = "download"
	EntrySystem         EntryKind = "system"
)

// Sender tags the bot platform records for actors it could not identify.
const (
	SenderTagGuest     = "guest"
	SenderTagAnonymous = "anonymous"
)

// HistoryEntry is one item of the bot platform's transcript. Entries are
// transient: consumed once during reconciliation and converted into
// messages, never persisted.
type HistoryEntry struct {
	CreatedAt  time.Time
	Kind       EntryKind
	Text       string
	Options    []Option
	SubAnswers []Option
	File       *MediaDescriptor
	SenderID   string
	SenderTag  string
	Origin     Origin
}
