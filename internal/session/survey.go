// ABOUTME: Post-chat survey and transcript overlays
// ABOUTME: Renders markdown content to HTML and drives the bot overlay

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/yuin/goldmark"

	"github.com/2389/handoff-bridge/internal/statestore"
)

// presentSurvey fetches the survey link for a just-closed chat, persists
// it as pending, and shows it. The pending record survives reloads until
// the user acknowledges the survey.
func (c *Controller) presentSurvey(ctx context.Context, chatID string) {
	if !c.cfg.Survey.Enabled {
		return
	}
	url, err := c.chat.SurveyURL(ctx, chatID)
	if err != nil {
		c.logger.Warn("fetching survey url", "chat_id", chatID, "error", err)
		return
	}
	if url == "" {
		return
	}

	content := fmt.Sprintf(c.cfg.Survey.Template, url)
	if err := c.store.SetSurvey(ctx, &statestore.Survey{Pending: true, Content: content}); err != nil {
		c.logger.Error("persisting pending survey", "error", err)
	}
	c.showOverlayMarkdown(content)
}

// maybePresentSurvey re-shows a survey left pending by an earlier session.
func (c *Controller) maybePresentSurvey(ctx context.Context) {
	survey, err := c.store.Survey(ctx)
	if errors.Is(err, statestore.ErrNotFound) {
		return
	}
	if err != nil {
		c.logger.Warn("reading pending survey", "error", err)
		return
	}
	if survey.Pending {
		c.showOverlayMarkdown(survey.Content)
	}
}

// showTranscript fetches the chat transcript and displays it. When the
// live connection is gone the token persisted at clear time is used.
func (c *Controller) showTranscript(ctx context.Context, chatID string) {
	if !c.cfg.Transcript.Enabled {
		c.logger.Debug("transcript notification ignored, feature disabled")
		return
	}

	token := c.chat.ConnectionToken()
	if token == "" {
		var err error
		token, err = c.store.PreviousToken(ctx)
		if err != nil {
			c.logger.Warn("no token available for transcript", "error", err)
			return
		}
	}

	transcript, err := c.chat.RequestTranscript(ctx, chatID, token)
	if err != nil {
		c.logger.Error("fetching transcript", "chat_id", chatID, "error", err)
		return
	}
	c.showOverlayMarkdown(transcript)
}

func (c *Controller) showOverlayMarkdown(content string) {
	html, err := renderMarkdown(content)
	if err != nil {
		c.logger.Error("rendering overlay content", "error", err)
		return
	}
	c.bot.ShowOverlay(html)
}

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}
