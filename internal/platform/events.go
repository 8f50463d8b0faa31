// ABOUTME: Typed inbound event variants consumed by the event router
// ABOUTME: Replaces ambient callback registration with explicit event values

package platform

import "time"

// BotEvent is an inbound event from the conversational-agent platform.
// Events that carry a Next continuation belong to the platform's own
// handler pipeline: when the engine does not consume the event it must
// invoke Next so normal bot behavior proceeds.
type BotEvent interface {
	isBotEvent()
}

// BotReady signals the bot platform finished initializing.
type BotReady struct{}

// BotSendMessage is the user submitting a message through the bot input.
type BotSendMessage struct {
	LocalID string
	Text    string
	Next    func()
}

// BotDownloadMedia is the user requesting a media download.
type BotDownloadMedia struct {
	Media MediaDescriptor
	Next  func()
}

// BotUploadMedia is the user attaching a file to send.
type BotUploadMedia struct {
	Media MediaUpload
	Next  func()
}

// BotSelectOption is the user selecting an option inside a system message.
type BotSelectOption struct {
	Option SystemOption
	Next   func()
}

// BotEscalate is the request to hand the conversation to a human agent.
type BotEscalate struct {
	UserData UserData
}

// BotInputActivity signals the user is interacting with the input field.
type BotInputActivity struct{}

// BotSurveyCompleted is the cross-window notification that the user
// finished the post-chat survey, surfaced by the host environment.
type BotSurveyCompleted struct {
	SurveyID string
}

func (BotReady) isBotEvent()           {}
func (BotSendMessage) isBotEvent()     {}
func (BotDownloadMedia) isBotEvent()   {}
func (BotUploadMedia) isBotEvent()     {}
func (BotSelectOption) isBotEvent()    {}
func (BotEscalate) isBotEvent()        {}
func (BotInputActivity) isBotEvent()   {}
func (BotSurveyCompleted) isBotEvent() {}

// ChatEvent is an inbound event from the live-chat service.
type ChatEvent interface {
	isChatEvent()
}

// UserJoined signals a participant (typically the assigned agent) joined.
type UserJoined struct {
	UserID string
	Name   string
}

// UserLeft signals a participant left the chat.
type UserLeft struct {
	UserID string
}

// UserActivity is a typing/presence indicator for a participant.
type UserActivity struct {
	UserID string
	Kind   string
}

// MessageReceived is a message accepted by or delivered through the service.
type MessageReceived struct {
	ExternalID string
	LocalID    string
	SenderID   string
	SenderName string
	Text       string
	Media      *MediaDescriptor
	SentAt     time.Time
}

// MessageRead is a read receipt for a previously sent message.
type MessageRead struct {
	ExternalID string
	LocalID    string
	ReaderID   string
}

// ChatClosed signals the service closed the chat.
type ChatClosed struct {
	ChatID string
}

// ChatIntervened signals a different agent took the chat over; the service
// treats this as a terminal event for the original session.
type ChatIntervened struct {
	ChatID    string
	AgentName string
}

// ForeverAlone signals agent search gave up without finding anyone.
type ForeverAlone struct {
	ChatID string
}

// SystemInfoKind tags service-level notifications.
type SystemInfoKind string

const (
	SystemInfoTicket     SystemInfoKind = "ticket"
	SystemInfoTranscript SystemInfoKind = "transcript"
)

// SystemInfo is a service-level notification (ticket creation, transcript
// availability).
type SystemInfo struct {
	Kind    SystemInfoKind
	ChatID  string
	Payload string
}

func (UserJoined) isChatEvent()      {}
func (UserLeft) isChatEvent()        {}
func (UserActivity) isChatEvent()    {}
func (MessageReceived) isChatEvent() {}
func (MessageRead) isChatEvent()     {}
func (ChatClosed) isChatEvent()      {}
func (ChatIntervened) isChatEvent()  {}
func (ForeverAlone) isChatEvent()    {}
func (SystemInfo) isChatEvent()      {}
