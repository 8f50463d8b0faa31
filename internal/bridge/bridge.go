// ABOUTME: MessageBridge translates messages and status transitions between
// ABOUTME: the bot platform and the live-chat service, tracking delivery state

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/handoff-bridge/internal/config"
	"github.com/2389/handoff-bridge/internal/platform"
)

// DeliveryError wraps a send or upload failure for a specific message. The
// message is marked failed; recovery is user-initiated, never automatic.
type DeliveryError struct {
	LocalID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of message %s failed: %v", e.LocalID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// SessionInfo is the non-owning lookup the bridge uses to resolve the
// current session. The bridge never mutates session state.
type SessionInfo interface {
	// IsChatOpen reports whether a live chat session is attached.
	IsChatOpen() bool

	// ChatHandle returns the live-chat handle of the open session.
	ChatHandle() (string, bool)

	// UserID returns the current user's identity on the chat service, or
	// empty when no session is open.
	UserID() string
}

// MessageSender is what the bridge needs from the chat service.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, localID, text string) (externalID string, err error)
	SendMedia(ctx context.Context, chatID string, upload platform.MediaUpload) (externalID string, err error)
}

// Bridge owns per-message delivery-status bookkeeping and translates
// events from each platform into message records on the other side.
type Bridge struct {
	mu       sync.Mutex
	session  SessionInfo
	chat     MessageSender
	bot      platform.BotActions
	messages config.MessagesConfig
	logger   *slog.Logger

	table *table
}

// New creates a Bridge. Pass nil logger for default.
func New(session SessionInfo, chat MessageSender, bot platform.BotActions, messages config.MessagesConfig, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		session:  session,
		chat:     chat,
		bot:      bot,
		messages: messages,
		logger:   logger.With("component", "bridge"),
		table:    newTable(),
	}
}

// HandleSendMessage processes a message the user submitted through the bot
// input. With no open session the message belongs to the normal bot
// conversation and is passed to the next handler unmodified. With an open
// session it is tracked pending, forwarded to the chat service, and marked
// sent (with its external id bound) or failed.
func (b *Bridge) HandleSendMessage(ctx context.Context, ev platform.BotSendMessage) error {
	if !b.session.IsChatOpen() {
		if ev.Next != nil {
			ev.Next()
		}
		return nil
	}

	chatID, ok := b.session.ChatHandle()
	if !ok {
		// Session is closing; sends are ignored, not queued.
		b.logger.Debug("send ignored, no open chat", "local_id", ev.LocalID)
		return nil
	}

	localID := ev.LocalID
	if localID == "" {
		localID = uuid.New().String()
	}

	b.track(&Message{
		LocalID:   localID,
		Origin:    platform.OriginUser,
		Text:      ev.Text,
		Status:    platform.StatusPending,
		CreatedAt: time.Now(),
	})

	externalID, err := b.chat.SendMessage(ctx, chatID, localID, ev.Text)
	if err != nil {
		b.advance(localID, platform.StatusFailed)
		b.bot.ShowSystemMessage(b.messages.SendFailed)
		return &DeliveryError{LocalID: localID, Err: err}
	}

	b.bindExternal(localID, externalID)
	b.advance(localID, platform.StatusSent)
	return nil
}

// HandleMessageReceived processes a message delivered by the chat service.
// The service delivers at least once, so the event is first matched against
// the table: a hit means a redelivery or the echo of a message this bridge
// already tracks, and the record is advanced in place rather than tracked
// again. A miss whose sender is the same logical user (a second open tab)
// is an echo: shown as the user's own message with its external id bound
// immediately. Anything else is agent-origin; media payloads become a
// placeholder text with the descriptor attached.
func (b *Bridge) HandleMessageReceived(ctx context.Context, ev platform.MessageReceived) {
	if !b.session.IsChatOpen() {
		b.logger.Debug("received message with no open session, ignored",
			"external_id", ev.ExternalID)
		return
	}

	b.mu.Lock()
	if msg, ok := b.resolveLocked(ev.LocalID, ev.ExternalID); ok {
		if msg.ExternalID == "" && ev.ExternalID != "" {
			b.table.bindExternal(msg.LocalID, ev.ExternalID)
		}
		// CanAdvance rejects the no-op redelivery and keeps failed terminal.
		b.advanceLocked(msg, platform.StatusDelivered)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if ev.SenderID == b.session.UserID() {
		localID := ev.LocalID
		if localID == "" {
			localID = uuid.New().String()
		}
		b.track(&Message{
			LocalID:    localID,
			ExternalID: ev.ExternalID,
			Origin:     platform.OriginUser,
			Text:       ev.Text,
			Media:      ev.Media,
			Status:     platform.StatusDelivered,
			CreatedAt:  ev.SentAt,
		})
		b.bot.ShowUserMessage(localID, ev.Text)
		return
	}

	text := ev.Text
	if ev.Media != nil && text == "" {
		text = b.messages.MediaPlaceholder
	}
	localID := uuid.New().String()
	b.track(&Message{
		LocalID:    localID,
		ExternalID: ev.ExternalID,
		Origin:     platform.OriginAgent,
		Text:       text,
		Media:      ev.Media,
		Status:     platform.StatusDelivered,
		CreatedAt:  ev.SentAt,
	})
	b.bot.ShowAgentMessage(ev.SenderName, text, ev.Media)
}

// HandleMessageRead processes a read receipt. The receipt only advances
// delivery state when it refers to the current user's own message, and read
// is only reachable from sent or delivered.
func (b *Bridge) HandleMessageRead(ctx context.Context, ev platform.MessageRead) {
	if ev.ReaderID != b.session.UserID() {
		b.logger.Debug("read receipt for another participant, ignored",
			"external_id", ev.ExternalID)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.resolveLocked(ev.LocalID, ev.ExternalID)
	if !ok {
		b.logger.Debug("read receipt for unknown message, ignored",
			"local_id", ev.LocalID, "external_id", ev.ExternalID)
		return
	}
	if msg.Status != platform.StatusSent && msg.Status != platform.StatusDelivered {
		b.logger.Debug("read receipt ignored for message not yet sent",
			"local_id", msg.LocalID, "status", msg.Status)
		return
	}
	b.advanceLocked(msg, platform.StatusRead)
}

// HandleUploadMedia processes a file the user attached. With no open
// session the upload is passed to the next handler. Permission-type
// rejections surface a distinct system message; any other failure marks the
// message failed.
func (b *Bridge) HandleUploadMedia(ctx context.Context, ev platform.BotUploadMedia) error {
	if !b.session.IsChatOpen() {
		if ev.Next != nil {
			ev.Next()
		}
		return nil
	}

	chatID, ok := b.session.ChatHandle()
	if !ok {
		b.logger.Debug("upload ignored, no open chat", "name", ev.Media.Name)
		return nil
	}

	localID := ev.Media.LocalID
	if localID == "" {
		localID = uuid.New().String()
	}

	b.track(&Message{
		LocalID: localID,
		Origin:  platform.OriginUser,
		Text:    ev.Media.Name,
		Media: &platform.MediaDescriptor{
			Name: ev.Media.Name,
			MIME: ev.Media.MIME,
			Size: ev.Media.Size,
		},
		Status:    platform.StatusPending,
		CreatedAt: time.Now(),
	})

	externalID, err := b.chat.SendMedia(ctx, chatID, ev.Media)
	if errors.Is(err, platform.ErrMediaNotAllowed) {
		// The file never entered the conversation; drop the record.
		b.untrack(localID)
		b.bot.ShowSystemMessage(b.messages.UploadNotAllowed)
		return nil
	}
	if err != nil {
		b.advance(localID, platform.StatusFailed)
		b.bot.ShowSystemMessage(b.messages.SendFailed)
		return &DeliveryError{LocalID: localID, Err: err}
	}

	b.bindExternal(localID, externalID)
	b.advance(localID, platform.StatusSent)
	b.advance(localID, platform.StatusDelivered)
	return nil
}

// Advance applies a status transition for the message with the given local
// id. Out-of-order transitions are rejected as a no-op so delivery state
// never regresses; failed is allowed from any non-terminal state. Returns
// whether the transition was applied.
func (b *Bridge) Advance(localID string, next platform.Status) bool {
	return b.advance(localID, next)
}

// Message returns the tracked message with the given local id.
func (b *Bridge) Message(localID string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.table.get(localID)
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Messages returns all tracked messages in observation order.
func (b *Bridge) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.table.all()
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

// Import tracks reconciled history messages and displays them, preserving
// their order. Used when a session is created or restored.
func (b *Bridge) Import(msgs []Message) {
	for i := range msgs {
		m := msgs[i]
		if m.LocalID == "" {
			m.LocalID = uuid.New().String()
		}
		b.track(&m)
		switch m.Origin {
		case platform.OriginUser:
			b.bot.ShowUserMessage(m.LocalID, m.Text)
		case platform.OriginSystem:
			b.bot.ShowSystemMessage(m.Text)
		default:
			b.bot.ShowAgentMessage("", m.Text, m.Media)
		}
	}
}

// Reset discards all message state. Called when the session is cleared;
// messages never outlive their session.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table = newTable()
}

func (b *Bridge) track(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table.add(m)
}

func (b *Bridge) untrack(localID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table.remove(localID)
}

func (b *Bridge) bindExternal(localID, externalID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table.bindExternal(localID, externalID)
}

func (b *Bridge) advance(localID string, next platform.Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.table.get(localID)
	if !ok {
		return false
	}
	return b.advanceLocked(m, next)
}

func (b *Bridge) advanceLocked(m *Message, next platform.Status) bool {
	if !m.Status.CanAdvance(next) {
		b.logger.Debug("status transition rejected",
			"local_id", m.LocalID,
			"from", m.Status,
			"to", next)
		return false
	}
	m.Status = next
	b.bot.UpdateDeliveryState(m.LocalID, m.ExternalID, next)
	return true
}

func (b *Bridge) resolveLocked(localID, externalID string) (*Message, bool) {
	if localID != "" {
		if m, ok := b.table.get(localID); ok {
			return m, true
		}
	}
	if externalID != "" {
		return b.table.getByExternal(externalID)
	}
	return nil, false
}
