// ABOUTME: Package documentation for event routing and notification fan-out
// ABOUTME: One dispatch goroutine, typed events, public re-publication

// Package events routes typed inbound events from the bot platform and the
// live-chat service to their handlers, and re-publishes session lifecycle
// milestones as named public notifications for external subscribers.
package events
