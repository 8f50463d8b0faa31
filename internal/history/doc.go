// Package history reconciles prior bot conversation history into live-chat
// messages when a session is created or restored.
package history
