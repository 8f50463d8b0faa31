// ABOUTME: In-memory fake of the bot platform for tests and the simulator
// ABOUTME: Records action calls and exposes a pushable event stream

package platform

import (
	"context"
	"fmt"
	"sync"
)

// FakeBot is an in-memory BotPlatform. Action calls are recorded as
// human-readable strings so tests can assert on the exact UI sequence.
type FakeBot struct {
	mu           sync.Mutex
	state        BotSnapshot
	inputEnabled bool
	transcript   []HistoryEntry
	calls        []string
	overlay      string
	events       chan BotEvent
}

// NewFakeBot creates a FakeBot with input enabled and no buttons visible.
func NewFakeBot() *FakeBot {
	return &FakeBot{
		inputEnabled: true,
		events:       make(chan BotEvent, 32),
	}
}

func (f *FakeBot) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakeBot) SetInputEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputEnabled = enabled
	f.record("input_enabled=%t", enabled)
}

// InputEnabled reports the fake's current input mode.
func (f *FakeBot) InputEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputEnabled
}

func (f *FakeBot) SetUploadButtonVisible(visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.UploadButtonVisible = visible
	f.record("upload_button=%t", visible)
}

func (f *FakeBot) SetCloseButtonVisible(visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.CloseButtonVisible = visible
	f.record("close_button=%t", visible)
}

func (f *FakeBot) ShowSystemMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("system: %s", text)
}

func (f *FakeBot) ShowUserMessage(localID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("user[%s]: %s", localID, text)
}

func (f *FakeBot) ShowAgentMessage(name, text string, media *MediaDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if media != nil {
		f.record("agent[%s]: %s (file %s)", name, text, media.Name)
		return
	}
	f.record("agent[%s]: %s", name, text)
}

func (f *FakeBot) UpdateDeliveryState(localID, externalID string, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delivery[%s/%s]=%s", localID, externalID, status)
}

func (f *FakeBot) SetAgentName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.AgentName = name
	f.record("agent_name=%s", name)
}

func (f *FakeBot) ClearAgentName() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.AgentName = ""
	f.record("agent_name_cleared")
}

func (f *FakeBot) ShowOverlay(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay = html
	f.record("overlay_shown")
}

func (f *FakeBot) HideOverlay() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay = ""
	f.record("overlay_hidden")
}

func (f *FakeBot) Snapshot() BotSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeBot) RestoreSnapshot(s BotSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.record("snapshot_restored")
}

func (f *FakeBot) Transcript(ctx context.Context, limit int) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.transcript
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *FakeBot) Events() <-chan BotEvent {
	return f.events
}

// SetTranscript replaces the fake's recorded conversation history.
func (f *FakeBot) SetTranscript(entries []HistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcript = entries
}

// PushEvent delivers an inbound bot event to the engine.
func (f *FakeBot) PushEvent(ev BotEvent) {
	f.events <- ev
}

// CloseEvents closes the event stream, ending the router loop.
func (f *FakeBot) CloseEvents() {
	close(f.events)
}

// Calls returns the recorded action calls in order.
func (f *FakeBot) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Overlay returns the currently displayed overlay HTML, or empty.
func (f *FakeBot) Overlay() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlay
}
