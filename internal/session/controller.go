// ABOUTME: SessionController drives the session lifecycle state machine
// ABOUTME: Orchestrates start, restore, close, and clear against both platforms

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/handoff-bridge/internal/bridge"
	"github.com/2389/handoff-bridge/internal/config"
	"github.com/2389/handoff-bridge/internal/history"
	"github.com/2389/handoff-bridge/internal/platform"
	"github.com/2389/handoff-bridge/internal/statestore"
)

// MessageLog is what the controller needs from the message bridge: import
// of reconciled history and wholesale reset when the session is cleared.
type MessageLog interface {
	Import(msgs []bridge.Message)
	Reset()
}

// Notifier receives the lifecycle notifications the controller produces.
// The event router re-publishes them to external subscribers.
type Notifier interface {
	ChatCreated(chatID string)
	ChatClosed(chatID string)
	TicketCreated(payload string)
}

type noopNotifier struct{}

func (noopNotifier) ChatCreated(string)   {}
func (noopNotifier) ChatClosed(string)    {}
func (noopNotifier) TicketCreated(string) {}

// Controller is the state machine governing the session lifecycle. At most
// one non-closed session exists at any time; the session and its messages
// are mutable only by the controller and the bridge.
type Controller struct {
	mu     sync.Mutex
	cfg    *config.Config
	bot    platform.BotPlatform
	chat   platform.ChatService
	probe  AvailabilityProbe
	store  statestore.Store
	marker statestore.Marker

	reconciler *history.Reconciler
	log        MessageLog
	notifier   Notifier
	logger     *slog.Logger

	session    *Session
	monitoring bool
	fallback   *time.Timer
	now        func() time.Time
}

// NewController creates a Controller. The message log and notifier are
// wired afterwards through SetMessageLog and SetNotifier because they hold
// references back to the controller. Pass nil logger for default.
func NewController(cfg *config.Config, bot platform.BotPlatform, chat platform.ChatService, probe AvailabilityProbe, store statestore.Store, marker statestore.Marker, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")
	return &Controller{
		cfg:        cfg,
		bot:        bot,
		chat:       chat,
		probe:      probe,
		store:      store,
		marker:     marker,
		reconciler: history.New(cfg.History.Limit, logger),
		notifier:   noopNotifier{},
		logger:     logger,
		now:        time.Now,
	}
}

// SetMessageLog wires the message bridge in.
func (c *Controller) SetMessageLog(log MessageLog) {
	c.log = log
}

// SetNotifier wires the lifecycle notification sink in.
func (c *Controller) SetNotifier(n Notifier) {
	if n != nil {
		c.notifier = n
	}
}

// Start escalates the bot conversation into a live chat session. With a
// chat already open it is a no-op. Steps run in strict sequence; a failure
// restores the UI out of connecting mode and surfaces a ConnectError,
// leaving no session behind. There are no automatic retries.
func (c *Controller) Start(ctx context.Context, user platform.UserData) error {
	c.mu.Lock()
	if c.openLocked() || c.marker.IsOpen() {
		c.mu.Unlock()
		c.logger.Info("start ignored, a chat is already open")
		return nil
	}
	c.session = &Session{ID: uuid.New().String(), StartedAt: c.now()}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.bot.SetInputEnabled(false)

	err := c.connect(ctx, user)

	c.bot.SetInputEnabled(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.session = nil
		c.marker.SetOpen(false)
		return err
	}
	if c.openLocked() {
		c.monitoring = true
	}
	return nil
}

// connect runs the escalation sequence. It is the single error boundary:
// the first failing step aborts the chain.
func (c *Controller) connect(ctx context.Context, user platform.UserData) error {
	if err := c.chat.Initialize(ctx); err != nil {
		return &ConnectError{Step: "initialize", Err: err}
	}

	available, err := c.probe.Check(ctx)
	switch {
	case err != nil:
		// Probe failures do not veto chat creation; availability gates
		// the caller's eligibility decision, not the chat itself.
		c.logger.Warn("availability check failed, creating chat anyway", "error", err)
	case !available:
		c.logger.Info("availability check negative, creating chat anyway")
	}

	identity, err := c.chat.RegisterUser(ctx, user)
	if err != nil {
		return &ConnectError{Step: "register user", Err: err}
	}

	chatID, err := c.chat.CreateChat(ctx, identity)
	if err != nil {
		return &ConnectError{Step: "create chat", Err: err}
	}

	snapshot := c.bot.Snapshot()

	c.mu.Lock()
	if c.session == nil {
		// The session was torn down while CreateChat was in flight (a
		// concurrent clear). The remote chat is abandoned unattached.
		c.mu.Unlock()
		return &ConnectError{Step: "attach chat", Err: ErrNoOpenChat}
	}
	c.session.Identity = identity
	c.session.ChatHandle = chatID
	c.session.Snapshot = snapshot
	c.setStateLocked(StateSearchingAgent)
	c.mu.Unlock()

	c.revealButtons()
	c.notifier.ChatCreated(chatID)
	c.forwardHistory(ctx, chatID, identity.UserID)

	found, err := c.chat.SearchAgent(ctx, chatID)
	if err != nil {
		return &ConnectError{Step: "search agent", Err: err}
	}
	if !found {
		c.foreverAlone(ctx, chatID)
		return nil
	}

	c.bot.ShowSystemMessage(c.cfg.Messages.WaitingForAgent)
	c.setState(StateWaitingForAgent)
	return nil
}

// Restore reattaches to an existing chat after a reload. The browser-local
// marker must indicate an open chat; a stale marker is reset. Failures are
// surfaced as ConnectError, logged by the caller, never retried.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	if c.openLocked() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if !c.marker.IsOpen() {
		return ErrNoOpenChat
	}

	if err := c.chat.Initialize(ctx); err != nil {
		return &ConnectError{Step: "initialize", Err: err}
	}

	chats, err := c.chat.LookupChats(ctx, "")
	if err != nil {
		return &ConnectError{Step: "lookup chats", Err: err}
	}

	var ref *platform.ChatRef
	for i := range chats {
		if !chats[i].Closed {
			ref = &chats[i]
			break
		}
	}
	if ref == nil {
		// Stale marker; no session is created.
		c.marker.SetOpen(false)
		c.logger.Info("no open chat found to restore")
		return nil
	}

	// The cutoff must be captured before reconciliation begins.
	cutoff := c.lastClosedTime(ctx)
	snapshot := c.bot.Snapshot()

	c.mu.Lock()
	c.session = &Session{
		ID:         uuid.New().String(),
		ChatHandle: ref.ID,
		Identity:   platform.ChatIdentity{UserID: ref.UserID, Token: c.chat.ConnectionToken()},
		Snapshot:   snapshot,
		AgentName:  ref.AgentName,
		StartedAt:  c.now(),
	}
	// An agent is presumed already assigned; agent search is skipped.
	c.setStateLocked(StateActive)
	c.monitoring = true
	c.mu.Unlock()

	if c.log != nil {
		c.log.Import(c.reconciler.Reconcile(ref.Missed, cutoff, ref.UserID))
	}

	c.revealButtons()
	if ref.AgentName != "" {
		c.bot.SetAgentName(ref.AgentName)
	}
	c.bot.SetInputEnabled(true)

	c.maybePresentSurvey(ctx)
	return nil
}

// Close initiates closure of the active chat. Local cleanup normally runs
// when the service acknowledges with its close event; a delayed fallback
// finalizes anyway in case that event never arrives (the server may emit a
// terminal system event instead of an explicit close).
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.openLocked() {
		c.mu.Unlock()
		return ErrNoActiveChat
	}
	chatID := c.session.ChatHandle
	c.setStateLocked(StateClosing)
	c.mu.Unlock()

	if err := c.chat.CloseChat(ctx, chatID); err != nil {
		c.logger.Error("closing chat with service", "chat_id", chatID, "error", err)
	}

	c.scheduleFallback()
	return nil
}

// Clear discards all chat and session references. Idempotent; safe to call
// when already idle. With the transcript feature configured it persists
// the captured auth token first, so the transcript stays reachable after
// the connection is gone.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.monitoring = false
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	c.marker.SetOpen(false)
	c.mu.Unlock()

	if sess != nil && c.cfg.Transcript.Enabled {
		// The connection token outlives the session while the SDK stays
		// up; record the captured one only when the connection's is gone.
		if c.chat.ConnectionToken() == "" && sess.Identity.Token != "" {
			if err := c.store.SetPreviousToken(ctx, sess.Identity.Token); err != nil {
				return fmt.Errorf("persisting previous token: %w", err)
			}
		}
	}

	if c.log != nil {
		c.log.Reset()
	}
	return nil
}

// HandleReady reacts to the bot platform finishing initialization: restore
// an open chat if the marker says one exists, otherwise re-show a pending
// survey.
func (c *Controller) HandleReady(ctx context.Context) error {
	if c.marker.IsOpen() {
		return c.Restore(ctx)
	}
	c.maybePresentSurvey(ctx)
	return nil
}

// HandleUserJoined reacts to a participant joining the chat.
func (c *Controller) HandleUserJoined(ctx context.Context, ev platform.UserJoined) {
	c.mu.Lock()
	if !c.openLocked() {
		c.mu.Unlock()
		c.logger.Debug("user joined with no open session, ignored", "user_id", ev.UserID)
		return
	}
	c.session.AgentName = ev.Name
	if c.session.State == StateSearchingAgent || c.session.State == StateWaitingForAgent {
		c.setStateLocked(StateActive)
	}
	c.mu.Unlock()

	if ev.Name != "" {
		c.bot.SetAgentName(ev.Name)
	}
}

// HandleUserLeft reacts to a participant leaving the chat.
func (c *Controller) HandleUserLeft(ctx context.Context, ev platform.UserLeft) {
	c.mu.Lock()
	open := c.openLocked()
	c.mu.Unlock()
	if !open {
		c.logger.Debug("user left with no open session, ignored", "user_id", ev.UserID)
		return
	}
	c.bot.ClearAgentName()
}

// HandleRemoteClosed reacts to the service closing the chat.
func (c *Controller) HandleRemoteClosed(ctx context.Context) {
	c.finalize(ctx)
}

// HandleIntervened reacts to a different agent taking the chat over. The
// service treats intervention as terminal for the original session.
func (c *Controller) HandleIntervened(ctx context.Context, ev platform.ChatIntervened) {
	c.logger.Info("chat intervened, closing session", "agent", ev.AgentName)
	c.finalize(ctx)
}

// HandleForeverAlone reacts to the service giving up on agent search.
func (c *Controller) HandleForeverAlone(ctx context.Context) {
	c.mu.Lock()
	if !c.openLocked() {
		c.mu.Unlock()
		c.logger.Debug("forever alone with no open session, ignored")
		return
	}
	chatID := c.session.ChatHandle
	c.mu.Unlock()

	c.foreverAlone(ctx, chatID)
}

// HandleSystemInfo reacts to service-level notifications.
func (c *Controller) HandleSystemInfo(ctx context.Context, ev platform.SystemInfo) {
	switch ev.Kind {
	case platform.SystemInfoTicket:
		c.bot.ShowSystemMessage(ev.Payload)
		c.notifier.TicketCreated(ev.Payload)
	case platform.SystemInfoTranscript:
		c.showTranscript(ctx, ev.ChatID)
	default:
		c.logger.Warn("unknown system info notification", "kind", ev.Kind)
	}
}

// HandleSelectOption reacts to the user selecting a system-message option.
// Only ticket-data options with an open chat are consumed; everything else
// is forwarded unchanged to the next handler in the bot's pipeline.
func (c *Controller) HandleSelectOption(ctx context.Context, ev platform.BotSelectOption) {
	if ev.Option.Kind != platform.OptionKindTicket || !c.IsChatOpen() {
		if ev.Next != nil {
			ev.Next()
		}
		return
	}

	chatID, ok := c.ChatHandle()
	if !ok {
		c.logger.Debug("ticket option ignored, chat is closing")
		return
	}
	if _, err := c.chat.SendMessage(ctx, chatID, uuid.New().String(), ev.Option.Value); err != nil {
		c.logger.Error("submitting ticket data", "error", err)
		c.bot.ShowSystemMessage(c.cfg.Messages.SendFailed)
	}
}

// HandleSurveyCompleted acknowledges the post-chat survey.
func (c *Controller) HandleSurveyCompleted(ctx context.Context) {
	if err := c.store.ClearSurvey(ctx); err != nil {
		c.logger.Error("clearing survey", "error", err)
	}
	c.bot.HideOverlay()
}

// NoteUserActivity forwards a user input activity ping to the service
// while a chat is open and monitoring has begun.
func (c *Controller) NoteUserActivity(ctx context.Context) {
	c.mu.Lock()
	active := c.monitoring && c.openLocked()
	var chatID string
	if active {
		chatID = c.session.ChatHandle
	}
	c.mu.Unlock()

	if !active || chatID == "" {
		return
	}
	if err := c.chat.ReportActivity(ctx, chatID); err != nil {
		c.logger.Debug("reporting activity", "error", err)
	}
}

// IsChatOpen reports whether the session state counts as an open chat.
// It holds iff State is not Idle or Closed, and the browser-local marker
// agrees with it after every transition.
func (c *Controller) IsChatOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked()
}

// ChatHandle returns the live-chat handle for sending. A closing session
// reports no handle: sends are ignored once closure begins.
func (c *Controller) ChatHandle() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.ChatHandle == "" {
		return "", false
	}
	switch c.session.State {
	case StateSearchingAgent, StateWaitingForAgent, StateActive:
		return c.session.ChatHandle, true
	}
	return "", false
}

// UserID returns the current user's identity on the chat service.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Identity.UserID
}

// State returns the current session state; Idle when no session exists.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StateIdle
	}
	return c.session.State
}

// AgentName returns the assigned agent's display name, or empty.
func (c *Controller) AgentName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AgentName
}

func (c *Controller) openLocked() bool {
	return c.session != nil && c.session.State.Open()
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(next)
}

func (c *Controller) setStateLocked(next State) {
	if c.session == nil {
		return
	}
	prev := c.session.State
	c.session.State = next
	c.marker.SetOpen(next.Open())
	c.logger.Debug("session state changed", "from", prev, "to", next)
}

func (c *Controller) revealButtons() {
	if c.cfg.UI.ShowUploadButton {
		c.bot.SetUploadButtonVisible(true)
	}
	if c.cfg.UI.ShowCloseButton {
		c.bot.SetCloseButtonVisible(true)
	}
}

// foreverAlone synthesizes the no-agent outcome: no-agents message, remote
// close, and the close-handling path run directly (no fallback needed).
func (c *Controller) foreverAlone(ctx context.Context, chatID string) {
	c.logger.Info("no agent found", "chat_id", chatID)
	c.bot.ShowSystemMessage(c.cfg.Messages.NoAgents)
	if err := c.chat.CloseChat(ctx, chatID); err != nil {
		c.logger.Error("closing unanswered chat", "chat_id", chatID, "error", err)
	}
	c.finalize(ctx)
}

// forwardHistory reconciles the prior bot conversation and forwards it to
// the live chat so the agent sees context. Best effort: failures are
// logged per entry, never fatal to escalation.
func (c *Controller) forwardHistory(ctx context.Context, chatID, userID string) {
	entries, err := c.bot.Transcript(ctx, c.cfg.History.Limit)
	if err != nil {
		c.logger.Warn("reading bot transcript", "error", err)
		return
	}
	cutoff := c.lastClosedTime(ctx)
	for _, m := range c.reconciler.Reconcile(entries, cutoff, userID) {
		if m.Origin == platform.OriginSystem {
			continue
		}
		if _, err := c.chat.SendMessage(ctx, chatID, m.LocalID, m.Text); err != nil {
			c.logger.Warn("forwarding history entry", "local_id", m.LocalID, "error", err)
		}
	}
}

func (c *Controller) lastClosedTime(ctx context.Context) time.Time {
	t, err := c.store.LastClosedTime(ctx)
	if errors.Is(err, statestore.ErrNotFound) {
		return time.Time{}
	}
	if err != nil {
		c.logger.Warn("reading lastClosedTime", "error", err)
		return time.Time{}
	}
	return t
}

func (c *Controller) scheduleFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fallback != nil {
		c.fallback.Stop()
	}
	c.fallback = time.AfterFunc(c.cfg.Session.CloseFallbackDelay, func() {
		c.logger.Warn("close event never arrived, finalizing cleanup")
		c.finalize(context.Background())
	})
}

// finalize transitions Closing→Closed, restores the prior bot UI, persists
// lastClosedTime, presents the survey, and clears all session state.
// Idempotent: a second invocation (e.g. the fallback firing after the
// service close event already resolved cleanup) is a no-op.
func (c *Controller) finalize(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return
	}
	if c.session.State == StateConnecting {
		// No chat handle exists yet, so a close event cannot refer to
		// this session; it is a stale redelivery for an earlier chat.
		c.mu.Unlock()
		c.logger.Debug("close event ignored while connecting")
		return
	}
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	chatID := c.session.ChatHandle
	snapshot := c.session.Snapshot
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	c.bot.RestoreSnapshot(snapshot)
	c.bot.SetInputEnabled(true)

	if err := c.store.SetLastClosedTime(ctx, c.now()); err != nil {
		c.logger.Error("persisting lastClosedTime", "error", err)
	}

	c.presentSurvey(ctx, chatID)
	c.notifier.ChatClosed(chatID)

	if err := c.Clear(ctx); err != nil {
		c.logger.Error("clearing session", "error", err)
	}
}
