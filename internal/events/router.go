// ABOUTME: Event router dispatching typed inbound events to their handlers
// ABOUTME: One goroutine owns dispatch so handlers never run concurrently

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/handoff-bridge/internal/bridge"
	"github.com/2389/handoff-bridge/internal/platform"
)

// SessionControl is what the router needs from the session controller.
type SessionControl interface {
	Start(ctx context.Context, user platform.UserData) error
	HandleReady(ctx context.Context) error
	HandleUserJoined(ctx context.Context, ev platform.UserJoined)
	HandleUserLeft(ctx context.Context, ev platform.UserLeft)
	HandleRemoteClosed(ctx context.Context)
	HandleIntervened(ctx context.Context, ev platform.ChatIntervened)
	HandleForeverAlone(ctx context.Context)
	HandleSystemInfo(ctx context.Context, ev platform.SystemInfo)
	HandleSelectOption(ctx context.Context, ev platform.BotSelectOption)
	HandleSurveyCompleted(ctx context.Context)
	NoteUserActivity(ctx context.Context)
}

// MessageHandler is what the router needs from the message bridge.
type MessageHandler interface {
	HandleSendMessage(ctx context.Context, ev platform.BotSendMessage) error
	HandleMessageReceived(ctx context.Context, ev platform.MessageReceived)
	HandleMessageRead(ctx context.Context, ev platform.MessageRead)
	HandleUploadMedia(ctx context.Context, ev platform.BotUploadMedia) error
}

// Router consumes the two inbound event streams and dispatches each event
// to the session controller or the message bridge. All dispatch happens on
// the single goroutine running Run, which is the engine's one logical
// thread of control: handlers run to completion, one at a time.
//
// Router also implements the controller's Notifier, re-publishing session
// lifecycle milestones as public Notifications through the broadcaster.
type Router struct {
	botEvents  <-chan platform.BotEvent
	chatEvents <-chan platform.ChatEvent
	session    SessionControl
	bridge     MessageHandler
	bc         *Broadcaster
	logger     *slog.Logger
}

// NewRouter creates a Router. Pass nil logger for default.
func NewRouter(botEvents <-chan platform.BotEvent, chatEvents <-chan platform.ChatEvent, session SessionControl, bridge MessageHandler, bc *Broadcaster, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		botEvents:  botEvents,
		chatEvents: chatEvents,
		session:    session,
		bridge:     bridge,
		bc:         bc,
		logger:     logger.With("component", "router"),
	}
}

// Run dispatches events until ctx is cancelled or both streams close.
func (r *Router) Run(ctx context.Context) error {
	bot, chat := r.botEvents, r.chatEvents
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-bot:
			if !ok {
				bot = nil
				break
			}
			r.dispatchBot(ctx, ev)
		case ev, ok := <-chat:
			if !ok {
				chat = nil
				break
			}
			r.dispatchChat(ctx, ev)
		}
		if bot == nil && chat == nil {
			return nil
		}
	}
}

func (r *Router) dispatchBot(ctx context.Context, ev platform.BotEvent) {
	switch ev := ev.(type) {
	case platform.BotReady:
		if err := r.session.HandleReady(ctx); err != nil {
			r.logger.Error("handling bot ready", "error", err)
		}
	case platform.BotEscalate:
		if err := r.session.Start(ctx, ev.UserData); err != nil {
			r.logger.Error("starting session", "error", err)
		}
	case platform.BotSendMessage:
		if err := r.bridge.HandleSendMessage(ctx, ev); err != nil {
			var derr *bridge.DeliveryError
			if errors.As(err, &derr) {
				r.logger.Warn("message delivery failed", "local_id", derr.LocalID, "error", err)
			} else {
				r.logger.Error("sending message", "error", err)
			}
		}
	case platform.BotUploadMedia:
		if err := r.bridge.HandleUploadMedia(ctx, ev); err != nil {
			r.logger.Warn("media delivery failed", "name", ev.Media.Name, "error", err)
		}
	case platform.BotSelectOption:
		r.session.HandleSelectOption(ctx, ev)
	case platform.BotInputActivity:
		r.session.NoteUserActivity(ctx)
	case platform.BotDownloadMedia:
		// Downloads are served by the bot platform itself.
		if ev.Next != nil {
			ev.Next()
		}
	case platform.BotSurveyCompleted:
		r.session.HandleSurveyCompleted(ctx)
	default:
		r.logger.Warn("unhandled bot event", "type", fmt.Sprintf("%T", ev))
	}
}

func (r *Router) dispatchChat(ctx context.Context, ev platform.ChatEvent) {
	switch ev := ev.(type) {
	case platform.UserJoined:
		r.session.HandleUserJoined(ctx, ev)
		r.publish(NoteUserJoined, ev.UserID)
	case platform.UserLeft:
		r.session.HandleUserLeft(ctx, ev)
		r.publish(NoteUserLeft, ev.UserID)
	case platform.UserActivity:
		// Presence indicators carry no UI today.
		r.logger.Debug("user activity", "user_id", ev.UserID, "kind", ev.Kind)
	case platform.MessageReceived:
		r.bridge.HandleMessageReceived(ctx, ev)
	case platform.MessageRead:
		r.bridge.HandleMessageRead(ctx, ev)
	case platform.ChatClosed:
		r.session.HandleRemoteClosed(ctx)
	case platform.ChatIntervened:
		r.session.HandleIntervened(ctx, ev)
	case platform.ForeverAlone:
		r.session.HandleForeverAlone(ctx)
	case platform.SystemInfo:
		r.session.HandleSystemInfo(ctx, ev)
	default:
		r.logger.Warn("unhandled chat event", "type", fmt.Sprintf("%T", ev))
	}
}

// ChatCreated re-publishes session creation as a public notification.
func (r *Router) ChatCreated(chatID string) {
	r.publish(NoteChatCreated, chatID)
}

// ChatClosed re-publishes session closure as a public notification.
func (r *Router) ChatClosed(chatID string) {
	r.publish(NoteChatClosed, chatID)
}

// TicketCreated re-publishes offline-ticket creation as a public
// notification.
func (r *Router) TicketCreated(payload string) {
	r.publish(NoteTicketCreated, payload)
}

func (r *Router) publish(name, payload string) {
	if r.bc == nil {
		return
	}
	r.bc.Publish(Notification{Name: name, Payload: payload})
}
