// ABOUTME: Capability interface for the conversational-agent platform
// ABOUTME: Action surface plus transcript access and the typed event stream

package platform

import "context"

// BotSnapshot captures the bot UI presentation state (visible buttons,
// names) at escalation time so it can be restored after the chat ends.
// Input mode is not part of the snapshot; connecting mode manages it.
type BotSnapshot struct {
	UploadButtonVisible bool
	CloseButtonVisible  bool
	AgentName           string
}

// BotActions is the action surface the engine may invoke on the bot
// platform. Implementations are simple I/O wrappers; the engine assumes
// every call is cheap and non-blocking.
type BotActions interface {
	SetInputEnabled(enabled bool)
	SetUploadButtonVisible(visible bool)
	SetCloseButtonVisible(visible bool)

	ShowSystemMessage(text string)
	ShowUserMessage(localID, text string)
	ShowAgentMessage(name, text string, media *MediaDescriptor)

	// UpdateDeliveryState changes a displayed message's delivery icon,
	// addressed by local or external id (either may be empty).
	UpdateDeliveryState(localID, externalID string, status Status)

	SetAgentName(name string)
	ClearAgentName()

	// ShowOverlay displays a custom window over the conversation (surveys,
	// transcripts). Content is HTML.
	ShowOverlay(html string)
	HideOverlay()

	Snapshot() BotSnapshot
	RestoreSnapshot(s BotSnapshot)
}

// BotPlatform is the full capability surface of the bot collaborator.
type BotPlatform interface {
	BotActions

	// Transcript returns up to limit of the most recent conversation
	// entries recorded by the bot platform, oldest first.
	Transcript(ctx context.Context, limit int) ([]HistoryEntry, error)

	// Events yields inbound bot events. The channel is owned by the
	// platform and closed when the platform shuts down.
	Events() <-chan BotEvent
}
