// ABOUTME: Tests for the session lifecycle controller
// ABOUTME: Covers start, restore, close, clear, and the event handlers

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/handoff-bridge/internal/bridge"
	"github.com/2389/handoff-bridge/internal/config"
	"github.com/2389/handoff-bridge/internal/platform"
	"github.com/2389/handoff-bridge/internal/statestore"
)

type engine struct {
	controller *Controller
	bridge     *bridge.Bridge
	bot        *platform.FakeBot
	chat       *platform.FakeChat
	store      *statestore.MemoryStore
	marker     *statestore.MemoryMarker
}

func newEngine(t *testing.T, mutate func(*config.Config)) *engine {
	t.Helper()

	cfg := config.Default()
	cfg.Session.CloseFallbackDelay = 25 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	bot := platform.NewFakeBot()
	chat := platform.NewFakeChat()
	store := statestore.NewMemoryStore()
	marker := &statestore.MemoryMarker{}

	probe, err := NewWorkingHoursProbe(cfg.Availability, chat)
	require.NoError(t, err)

	controller := NewController(cfg, bot, chat, probe, store, marker, nil)
	b := bridge.New(controller, chat, bot, cfg.Messages, nil)
	controller.SetMessageLog(b)

	return &engine{
		controller: controller,
		bridge:     b,
		bot:        bot,
		chat:       chat,
		store:      store,
		marker:     marker,
	}
}

func (e *engine) assertMarkerAgrees(t *testing.T) {
	t.Helper()
	state := e.controller.State()
	want := state != StateIdle && state != StateClosed
	assert.Equal(t, want, e.marker.IsOpen(), "marker disagrees with state %s", state)
}

var testUser = platform.UserData{UserID: "user-1", Name: "Pat", Email: "pat@example.com"}

func TestStart_HappyPath(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))

	assert.Equal(t, StateWaitingForAgent, e.controller.State())
	assert.True(t, e.controller.IsChatOpen())
	e.assertMarkerAgrees(t)

	handle, ok := e.controller.ChatHandle()
	require.True(t, ok)
	assert.Equal(t, "chat-user-1", handle)

	assert.True(t, e.bot.InputEnabled(), "input must be restored after connecting")
	calls := e.bot.Calls()
	assert.Contains(t, calls, "input_enabled=false")
	assert.Contains(t, calls, "upload_button=true")
	assert.Contains(t, calls, "close_button=true")
	assert.Contains(t, calls, "system: "+config.Default().Messages.WaitingForAgent)
}

func TestStart_WhileOpenIsNoOp(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	e.controller.HandleUserJoined(ctx, platform.UserJoined{UserID: "agent-7", Name: "Alex"})
	require.Equal(t, StateActive, e.controller.State())

	// Second start leaves the running session untouched.
	require.NoError(t, e.controller.Start(ctx, testUser))
	assert.Equal(t, StateActive, e.controller.State())
	assert.Equal(t, "Alex", e.controller.AgentName())
}

func TestStart_MarkerFromAnotherTabBlocksStart(t *testing.T) {
	e := newEngine(t, nil)
	e.marker.SetOpen(true)

	require.NoError(t, e.controller.Start(context.Background(), testUser))

	assert.Equal(t, StateIdle, e.controller.State())
	assert.Empty(t, e.bot.Calls())
}

func TestStart_InitializeFailureLeavesNoSession(t *testing.T) {
	e := newEngine(t, nil)
	e.chat.InitializeErr = errors.New("network down")

	err := e.controller.Start(context.Background(), testUser)

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "initialize", cerr.Step)

	assert.Equal(t, StateIdle, e.controller.State())
	assert.False(t, e.controller.IsChatOpen())
	e.assertMarkerAgrees(t)
	assert.True(t, e.bot.InputEnabled(), "input must be restored after a failed start")
}

func TestStart_CreateChatFailureLeavesNoSession(t *testing.T) {
	e := newEngine(t, nil)
	e.chat.CreateErr = errors.New("service rejected")

	err := e.controller.Start(context.Background(), testUser)

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "create chat", cerr.Step)
	assert.Equal(t, StateIdle, e.controller.State())
	e.assertMarkerAgrees(t)
}

func TestStart_NoRetryAfterFailure(t *testing.T) {
	e := newEngine(t, nil)
	e.chat.InitializeErr = errors.New("network down")

	err := e.controller.Start(context.Background(), testUser)
	require.Error(t, err)

	// The engine does not retry on its own; a second explicit start works
	// once the service recovers.
	e.chat.InitializeErr = nil
	require.NoError(t, e.controller.Start(context.Background(), testUser))
	assert.Equal(t, StateWaitingForAgent, e.controller.State())
}

func TestStart_ProbeFailureDoesNotBlockChatCreation(t *testing.T) {
	e := newEngine(t, nil)
	e.controller.probe = failingProbe{}

	require.NoError(t, e.controller.Start(context.Background(), testUser))
	assert.Equal(t, StateWaitingForAgent, e.controller.State())
}

type failingProbe struct{}

func (failingProbe) Check(ctx context.Context) (bool, error) {
	return false, errors.New("probe unreachable")
}

func TestStart_ForwardsPriorBotConversation(t *testing.T) {
	e := newEngine(t, nil)
	e.bot.SetTranscript([]platform.HistoryEntry{
		{CreatedAt: time.Unix(100, 0), Kind: platform.EntryText, Text: "old question", SenderID: "user-1"},
		{CreatedAt: time.Unix(200, 0), Kind: platform.EntrySystem, Text: "bot greeting"},
		{CreatedAt: time.Unix(300, 0), Kind: platform.EntryText, Text: "new question", SenderID: "user-1"},
	})
	require.NoError(t, e.store.SetLastClosedTime(context.Background(), time.Unix(150, 0)))

	require.NoError(t, e.controller.Start(context.Background(), testUser))

	// Entries at or before the cutoff and system entries are not forwarded.
	assert.Equal(t, []string{"new question"}, e.chat.Sent())
}

func TestStart_NoAgentFound(t *testing.T) {
	e := newEngine(t, nil)
	e.chat.AgentFound = false

	require.NoError(t, e.controller.Start(context.Background(), testUser))

	assert.Equal(t, StateIdle, e.controller.State())
	e.assertMarkerAgrees(t)
	assert.Contains(t, e.bot.Calls(), "system: "+config.Default().Messages.NoAgents)
	assert.Equal(t, []string{"chat-user-1"}, e.chat.ClosedChats())
	assert.True(t, e.bot.InputEnabled())
}

// interceptingChat runs a callback while CreateChat is in flight, letting
// tests interleave controller calls with the connect sequence.
type interceptingChat struct {
	*platform.FakeChat
	onCreate func()
}

func (c *interceptingChat) CreateChat(ctx context.Context, identity platform.ChatIdentity) (string, error) {
	if c.onCreate != nil {
		c.onCreate()
	}
	return c.FakeChat.CreateChat(ctx, identity)
}

func newInterceptedEngine(t *testing.T) (*Controller, *interceptingChat) {
	t.Helper()

	cfg := config.Default()
	bot := platform.NewFakeBot()
	chat := &interceptingChat{FakeChat: platform.NewFakeChat()}

	probe, err := NewWorkingHoursProbe(cfg.Availability, chat)
	require.NoError(t, err)

	controller := NewController(cfg, bot, chat, probe, statestore.NewMemoryStore(), &statestore.MemoryMarker{}, nil)
	controller.SetMessageLog(bridge.New(controller, chat, bot, cfg.Messages, nil))
	return controller, chat
}

func TestStart_StaleCloseEventDuringConnectIgnored(t *testing.T) {
	controller, chat := newInterceptedEngine(t)
	ctx := context.Background()

	// A redelivered close event from an earlier chat lands while
	// CreateChat is still in flight; it must not tear the session down.
	chat.onCreate = func() { controller.HandleRemoteClosed(ctx) }

	require.NoError(t, controller.Start(ctx, testUser))
	assert.Equal(t, StateWaitingForAgent, controller.State())
}

func TestStart_ClearDuringConnectAbortsWithoutPanic(t *testing.T) {
	controller, chat := newInterceptedEngine(t)
	ctx := context.Background()

	chat.onCreate = func() { require.NoError(t, controller.Clear(ctx)) }

	err := controller.Start(ctx, testUser)

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "attach chat", cerr.Step)
	assert.ErrorIs(t, err, ErrNoOpenChat)
	assert.Equal(t, StateIdle, controller.State())
}

func TestClose_RequiresOpenSession(t *testing.T) {
	e := newEngine(t, nil)
	err := e.controller.Close(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveChat)
}

func TestClose_FinalizedByRemoteEvent(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	e.controller.HandleUserJoined(ctx, platform.UserJoined{UserID: "agent-7", Name: "Alex"})

	require.NoError(t, e.controller.Close(ctx))
	assert.Equal(t, StateClosing, e.controller.State())
	assert.True(t, e.controller.IsChatOpen(), "closing still counts as open")
	e.assertMarkerAgrees(t)

	// Sends are ignored once closure began.
	_, ok := e.controller.ChatHandle()
	assert.False(t, ok)

	e.controller.HandleRemoteClosed(ctx)

	assert.Equal(t, StateIdle, e.controller.State())
	e.assertMarkerAgrees(t)
	assert.Contains(t, e.bot.Calls(), "snapshot_restored")

	closedAt, err := e.store.LastClosedTime(ctx)
	require.NoError(t, err)
	assert.False(t, closedAt.IsZero())
}

func TestClose_FallbackFinalizesWithoutRemoteEvent(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	require.NoError(t, e.controller.Close(ctx))

	require.Eventually(t, func() bool {
		return e.controller.State() == StateIdle
	}, time.Second, 10*time.Millisecond, "fallback timer never finalized the session")
	e.assertMarkerAgrees(t)
}

func TestClose_RemoteEventSuppressesFallback(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	require.NoError(t, e.controller.Close(ctx))
	e.controller.HandleRemoteClosed(ctx)

	closedAt, err := e.store.LastClosedTime(ctx)
	require.NoError(t, err)

	// Let the fallback window pass; the recorded close time must not move.
	time.Sleep(60 * time.Millisecond)
	later, err := e.store.LastClosedTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, closedAt, later)
}

func TestIntervention_ClosesSession(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	e.controller.HandleIntervened(ctx, platform.ChatIntervened{ChatID: "chat-user-1", AgentName: "Supervisor"})

	assert.Equal(t, StateIdle, e.controller.State())
	e.assertMarkerAgrees(t)
}

func TestClear_Idempotent(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	require.NoError(t, e.controller.Clear(ctx))
	require.NoError(t, e.controller.Clear(ctx))

	assert.Equal(t, StateIdle, e.controller.State())
	assert.False(t, e.marker.IsOpen())
	assert.Empty(t, e.bridge.Messages())
}

func TestClear_PersistsTokenForTranscript(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Transcript.Enabled = true
	})
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))

	// Simulate the SDK connection being gone at clear time.
	e.chat.Token = ""
	require.NoError(t, e.controller.Clear(ctx))

	token, err := e.store.PreviousToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake-token", token)
}

func TestClear_NoTokenPersistedWhileConnectionLives(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Transcript.Enabled = true
	})
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	require.NoError(t, e.controller.Clear(ctx))

	_, err := e.store.PreviousToken(ctx)
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestRestore_ReattachesToOpenChat(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.store.SetLastClosedTime(ctx, time.Unix(150, 0)))
	e.marker.SetOpen(true)
	e.chat.ExistingChats = []platform.ChatRef{{
		ID:        "chat-9",
		UserID:    "user-1",
		AgentName: "Alex",
		Missed: []platform.HistoryEntry{
			{CreatedAt: time.Unix(100, 0), Kind: platform.EntryText, Text: "hi", SenderID: "agent-7"},
			{CreatedAt: time.Unix(200, 0), Kind: platform.EntryText, Text: "bye", SenderID: "agent-7"},
		},
	}}

	require.NoError(t, e.controller.Restore(ctx))

	assert.Equal(t, StateActive, e.controller.State())
	e.assertMarkerAgrees(t)
	assert.Equal(t, "Alex", e.controller.AgentName())

	handle, ok := e.controller.ChatHandle()
	require.True(t, ok)
	assert.Equal(t, "chat-9", handle)

	// Only the missed message after the cutoff was imported.
	msgs := e.bridge.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bye", msgs[0].Text)
	assert.Contains(t, e.bot.Calls(), "agent_name=Alex")
}

func TestRestore_StaleMarkerReset(t *testing.T) {
	e := newEngine(t, nil)
	e.marker.SetOpen(true)

	require.NoError(t, e.controller.Restore(context.Background()))

	assert.Equal(t, StateIdle, e.controller.State())
	assert.False(t, e.marker.IsOpen())
}

func TestRestore_WithoutMarkerFails(t *testing.T) {
	e := newEngine(t, nil)
	err := e.controller.Restore(context.Background())
	assert.ErrorIs(t, err, ErrNoOpenChat)
}

func TestRestore_LookupFailureSurfacesConnectError(t *testing.T) {
	e := newEngine(t, nil)
	e.marker.SetOpen(true)
	e.chat.LookupErr = errors.New("timeout")

	err := e.controller.Restore(context.Background())

	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "lookup chats", cerr.Step)
}

func TestHandleReady_RestoresWhenMarkerOpen(t *testing.T) {
	e := newEngine(t, nil)
	e.marker.SetOpen(true)
	e.chat.ExistingChats = []platform.ChatRef{{ID: "chat-9", UserID: "user-1"}}

	require.NoError(t, e.controller.HandleReady(context.Background()))
	assert.Equal(t, StateActive, e.controller.State())
}

func TestHandleReady_ReshowsPendingSurvey(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.store.SetSurvey(ctx, &statestore.Survey{
		Pending: true,
		Content: "How did we do? [Rate us](https://example.com/s/1).",
	}))

	require.NoError(t, e.controller.HandleReady(ctx))

	assert.Contains(t, e.bot.Overlay(), "https://example.com/s/1")
}

func TestSurvey_PresentedOnCloseAndAcknowledged(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Survey.Enabled = true
	})
	ctx := context.Background()
	e.chat.Survey = "https://example.com/s/42"

	require.NoError(t, e.controller.Start(ctx, testUser))
	require.NoError(t, e.controller.Close(ctx))
	e.controller.HandleRemoteClosed(ctx)

	assert.Contains(t, e.bot.Overlay(), "https://example.com/s/42")

	survey, err := e.store.Survey(ctx)
	require.NoError(t, err)
	assert.True(t, survey.Pending)

	e.controller.HandleSurveyCompleted(ctx)
	assert.Empty(t, e.bot.Overlay())
	_, err = e.store.Survey(ctx)
	assert.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestHandleSelectOption_TicketConsumedWhileOpen(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))

	forwarded := false
	e.controller.HandleSelectOption(ctx, platform.BotSelectOption{
		Option: platform.SystemOption{Kind: platform.OptionKindTicket, Value: "ORD-1234"},
		Next:   func() { forwarded = true },
	})

	assert.False(t, forwarded)
	assert.Contains(t, e.chat.Sent(), "ORD-1234")
}

func TestHandleSelectOption_NonTicketForwarded(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))

	forwarded := false
	e.controller.HandleSelectOption(ctx, platform.BotSelectOption{
		Option: platform.SystemOption{Kind: "menu", Value: "billing"},
		Next:   func() { forwarded = true },
	})

	assert.True(t, forwarded)
	assert.NotContains(t, e.chat.Sent(), "billing")
}

func TestHandleSelectOption_TicketWithClosedChatForwarded(t *testing.T) {
	e := newEngine(t, nil)

	forwarded := false
	e.controller.HandleSelectOption(context.Background(), platform.BotSelectOption{
		Option: platform.SystemOption{Kind: platform.OptionKindTicket, Value: "ORD-1234"},
		Next:   func() { forwarded = true },
	})

	assert.True(t, forwarded)
	assert.Empty(t, e.chat.Sent())
}

func TestNoteUserActivity_OnlyWhileSessionOpen(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	e.controller.NoteUserActivity(ctx)
	assert.Empty(t, e.chat.Activity(), "no activity reports before a session exists")

	require.NoError(t, e.controller.Start(ctx, testUser))
	e.controller.NoteUserActivity(ctx)
	assert.Equal(t, []string{"chat-user-1"}, e.chat.Activity())

	require.NoError(t, e.controller.Clear(ctx))
	e.controller.NoteUserActivity(ctx)
	assert.Len(t, e.chat.Activity(), 1, "no activity reports after clear")
}

func TestHandleUserLeft_ClearsAgentName(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.controller.Start(ctx, testUser))
	e.controller.HandleUserJoined(ctx, platform.UserJoined{UserID: "agent-7", Name: "Alex"})
	e.controller.HandleUserLeft(ctx, platform.UserLeft{UserID: "agent-7"})

	assert.Contains(t, e.bot.Calls(), "agent_name_cleared")
}

func TestHandleSystemInfo_TicketNotifies(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	var gotTicket string
	e.controller.SetNotifier(&recordingNotifier{onTicket: func(p string) { gotTicket = p }})

	e.controller.HandleSystemInfo(ctx, platform.SystemInfo{
		Kind:    platform.SystemInfoTicket,
		Payload: "We got your request, ticket #88.",
	})

	assert.Equal(t, "We got your request, ticket #88.", gotTicket)
	assert.Contains(t, e.bot.Calls(), "system: We got your request, ticket #88.")
}

func TestHandleSystemInfo_TranscriptUsesPersistedToken(t *testing.T) {
	e := newEngine(t, func(cfg *config.Config) {
		cfg.Transcript.Enabled = true
	})
	ctx := context.Background()

	e.chat.Token = ""
	e.chat.Transcript = "**Transcript** of chat-9"
	require.NoError(t, e.store.SetPreviousToken(ctx, "old-token"))

	e.controller.HandleSystemInfo(ctx, platform.SystemInfo{
		Kind:   platform.SystemInfoTranscript,
		ChatID: "chat-9",
	})

	assert.Contains(t, e.bot.Overlay(), "<strong>Transcript</strong>")
}

type recordingNotifier struct {
	onTicket func(string)
}

func (n *recordingNotifier) ChatCreated(string) {}
func (n *recordingNotifier) ChatClosed(string)  {}
func (n *recordingNotifier) TicketCreated(p string) {
	if n.onTicket != nil {
		n.onTicket(p)
	}
}

func TestSessionStateOpen(t *testing.T) {
	open := []State{StateConnecting, StateSearchingAgent, StateWaitingForAgent, StateActive, StateClosing}
	for _, s := range open {
		assert.True(t, s.Open(), "state %s must count as open", s)
	}
	assert.False(t, StateIdle.Open())
	assert.False(t, StateClosed.Open())
}
