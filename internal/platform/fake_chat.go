// ABOUTME: In-memory fake of the live-chat service for tests and the simulator
// ABOUTME: Scriptable per-operation failures, agent availability, and events

package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeChat is an in-memory ChatService. Behavior knobs let tests script
// failures for individual operations and control agent availability.
type FakeChat struct {
	mu sync.Mutex

	// Behavior knobs.
	InitializeErr  error
	RegisterErr    error
	CreateErr      error
	LookupErr      error
	SearchErr      error
	SendErr        error
	AgentFound     bool
	AgentCount     int
	Survey         string
	Transcript     string
	Token          string
	AllowedMIME    []string
	ExistingChats  []ChatRef
	initialized    bool
	nextExternalID int

	sent     []string
	closed   []string
	activity []string
	events   chan ChatEvent
}

// NewFakeChat creates a FakeChat with one available agent and no survey.
func NewFakeChat() *FakeChat {
	return &FakeChat{
		AgentFound: true,
		AgentCount: 1,
		Token:      "fake-token",
		events:     make(chan ChatEvent, 32),
	}
}

func (f *FakeChat) Initialize(ctx context.Context) error {
	if f.InitializeErr != nil {
		return f.InitializeErr
	}
	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()
	return nil
}

func (f *FakeChat) RegisterUser(ctx context.Context, user UserData) (ChatIdentity, error) {
	if f.RegisterErr != nil {
		return ChatIdentity{}, f.RegisterErr
	}
	return ChatIdentity{
		UserID: user.UserID,
		Name:   user.Name,
		Email:  user.Email,
		Token:  f.Token,
	}, nil
}

func (f *FakeChat) CreateChat(ctx context.Context, identity ChatIdentity) (string, error) {
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	return "chat-" + identity.UserID, nil
}

func (f *FakeChat) LookupChats(ctx context.Context, userID string) ([]ChatRef, error) {
	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ChatRef, len(f.ExistingChats))
	copy(out, f.ExistingChats)
	return out, nil
}

func (f *FakeChat) SearchAgent(ctx context.Context, chatID string) (bool, error) {
	if f.SearchErr != nil {
		return false, f.SearchErr
	}
	return f.AgentFound, nil
}

func (f *FakeChat) SendMessage(ctx context.Context, chatID, localID, text string) (string, error) {
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextExternalID++
	f.sent = append(f.sent, text)
	return fmt.Sprintf("ext-%d", f.nextExternalID), nil
}

func (f *FakeChat) SendMedia(ctx context.Context, chatID string, upload MediaUpload) (string, error) {
	if f.SendErr != nil {
		return "", f.SendErr
	}
	if len(f.AllowedMIME) > 0 && !f.mimeAllowed(upload.MIME) {
		return "", ErrMediaNotAllowed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextExternalID++
	f.sent = append(f.sent, "file:"+upload.Name)
	return fmt.Sprintf("ext-%d", f.nextExternalID), nil
}

func (f *FakeChat) mimeAllowed(mime string) bool {
	for _, allowed := range f.AllowedMIME {
		if strings.EqualFold(allowed, mime) {
			return true
		}
	}
	return false
}

func (f *FakeChat) ReportActivity(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, chatID)
	return nil
}

func (f *FakeChat) CloseChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, chatID)
	return nil
}

func (f *FakeChat) AvailableAgents(ctx context.Context) (int, error) {
	return f.AgentCount, nil
}

func (f *FakeChat) SurveyURL(ctx context.Context, chatID string) (string, error) {
	return f.Survey, nil
}

func (f *FakeChat) RequestTranscript(ctx context.Context, chatID, token string) (string, error) {
	return f.Transcript, nil
}

func (f *FakeChat) ConnectionToken() string {
	return f.Token
}

func (f *FakeChat) Events() <-chan ChatEvent {
	return f.events
}

// PushEvent delivers an inbound chat event to the engine.
func (f *FakeChat) PushEvent(ev ChatEvent) {
	f.events <- ev
}

// CloseEvents closes the event stream, ending the router loop.
func (f *FakeChat) CloseEvents() {
	close(f.events)
}

// Sent returns the message texts forwarded to the service in order.
func (f *FakeChat) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// Activity returns the chat ids activity was reported for, in order.
func (f *FakeChat) Activity() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.activity))
	copy(out, f.activity)
	return out
}

// ClosedChats returns the chat ids closed through the service.
func (f *FakeChat) ClosedChats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.closed))
	copy(out, f.closed)
	return out
}
