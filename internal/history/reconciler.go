// ABOUTME: HistoryReconciler converts bot transcript entries into chat messages
// ABOUTME: Filters by recency cutoff so prior sessions are not re-imported

package history

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/handoff-bridge/internal/bridge"
	"github.com/2389/handoff-bridge/internal/platform"
)

// Reconciler transforms the bot platform's transcript into live-chat
// message records, bounded to a fixed maximum number of entries and
// filtered by recency. Entries are consumed once; the output is a fresh
// slice, identical for identical input.
type Reconciler struct {
	limit  int
	logger *slog.Logger
}

// New creates a Reconciler keeping at most limit entries (most recent).
// Pass nil logger for default.
func New(limit int, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		limit:  limit,
		logger: logger.With("component", "history"),
	}
}

// Reconcile maps transcript entries to messages. Entries with CreatedAt at
// or before filterTime are dropped when a cutoff is supplied; the cutoff
// must be captured before reconciliation begins. currentUserID resolves
// anonymous senders to the current user.
func (r *Reconciler) Reconcile(entries []platform.HistoryEntry, filterTime time.Time, currentUserID string) []bridge.Message {
	if r.limit > 0 && len(entries) > r.limit {
		entries = entries[len(entries)-r.limit:]
	}

	out := make([]bridge.Message, 0, len(entries))
	dropped := 0
	for _, entry := range entries {
		if !filterTime.IsZero() && !entry.CreatedAt.After(filterTime) {
			dropped++
			continue
		}
		out = append(out, r.mapEntry(entry, currentUserID))
	}

	if dropped > 0 {
		r.logger.Debug("transcript entries filtered by cutoff",
			"dropped", dropped,
			"kept", len(out))
	}
	return out
}

func (r *Reconciler) mapEntry(entry platform.HistoryEntry, currentUserID string) bridge.Message {
	msg := bridge.Message{
		LocalID:   uuid.New().String(),
		Origin:    resolveOrigin(entry, currentUserID),
		Text:      entry.Text,
		Status:    platform.StatusDelivered,
		CreatedAt: entry.CreatedAt,
	}

	switch entry.Kind {
	case platform.EntryChoice:
		msg.Options = entry.Options

	case platform.EntryExtendedChoice:
		msg.Options = entry.SubAnswers

	case platform.EntryDownload:
		if entry.File != nil {
			msg.Media = entry.File
			msg.Text = entry.File.Name
			if msg.Text == "" {
				msg.Text = entry.File.URL
			}
		}

	case platform.EntrySystem:
		// System entries speak for the service regardless of the
		// recorded sender.
		msg.Origin = platform.OriginSystem
	}

	return msg
}

// resolveOrigin derives a message origin from the entry's sender
// identifier if present, infers the current user for anonymous/guest
// sender tags, and otherwise passes the recorded origin through as-is.
func resolveOrigin(entry platform.HistoryEntry, currentUserID string) platform.Origin {
	if entry.SenderID != "" {
		if entry.SenderID == currentUserID {
			return platform.OriginUser
		}
		return platform.OriginAgent
	}
	switch strings.ToLower(entry.SenderTag) {
	case platform.SenderTagGuest, platform.SenderTagAnonymous:
		return platform.OriginUser
	}
	return entry.Origin
}
