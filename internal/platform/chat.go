// ABOUTME: Capability interface for the live human-agent chat service
// ABOUTME: Session/chat/message operations plus the typed event stream

package platform

import "context"

// ChatIdentity is the user's identity as registered with the chat service.
type ChatIdentity struct {
	UserID string
	Name   string
	Email  string
	Token  string
}

// ChatRef describes one of the user's chats as returned by a lookup.
// Missed holds messages received while no local session was attached,
// oldest first, expressed as transcript entries for reconciliation.
type ChatRef struct {
	ID        string
	UserID    string
	Closed    bool
	AgentName string
	Missed    []HistoryEntry
}

// ChatService is the action surface of the live-chat collaborator. All
// methods are suspension points: they may perform network I/O and must
// honor ctx cancellation. The service provides at-least-once, ordered
// delivery of events on the channel returned by Events.
type ChatService interface {
	// Initialize loads and prepares the remote SDK. Idempotent.
	Initialize(ctx context.Context) error

	RegisterUser(ctx context.Context, user UserData) (ChatIdentity, error)

	// CreateChat creates or reuses a chat room for the identity and
	// returns its opaque handle.
	CreateChat(ctx context.Context, identity ChatIdentity) (string, error)

	// LookupChats returns the user's existing chats. A user has at most
	// one concurrent (non-closed) chat. An empty userID resolves to the
	// credentials of the current connection.
	LookupChats(ctx context.Context, userID string) ([]ChatRef, error)

	// SearchAgent requests an agent for the chat. found is false when the
	// service gave up without assigning anyone.
	SearchAgent(ctx context.Context, chatID string) (found bool, err error)

	// SendMessage forwards a user message and returns the external id the
	// service assigned on acceptance.
	SendMessage(ctx context.Context, chatID, localID, text string) (externalID string, err error)

	// SendMedia uploads a file into the chat. Returns ErrMediaNotAllowed
	// when the service rejects the file type.
	SendMedia(ctx context.Context, chatID string, upload MediaUpload) (externalID string, err error)

	ReportActivity(ctx context.Context, chatID string) error

	CloseChat(ctx context.Context, chatID string) error

	// AvailableAgents reports how many agents could answer right now.
	AvailableAgents(ctx context.Context) (int, error)

	// SurveyURL returns the post-chat survey URL for the chat, or empty
	// when the service has no survey configured.
	SurveyURL(ctx context.Context, chatID string) (string, error)

	// RequestTranscript asks the service to produce a transcript of the
	// chat, authorized by token, and returns it as markdown.
	RequestTranscript(ctx context.Context, chatID, token string) (string, error)

	// ConnectionToken returns the live connection's current auth token,
	// or empty when the connection no longer holds one.
	ConnectionToken() string

	// Events yields inbound chat events. The channel is owned by the
	// service and closed when the connection ends.
	Events() <-chan ChatEvent
}
