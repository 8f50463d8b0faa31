// Package bridge maps messages and status transitions between the bot
// platform and the live-chat service, and owns per-message delivery-status
// bookkeeping for the current session.
package bridge
