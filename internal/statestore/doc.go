// Package statestore persists the small session markers that must survive
// a page reload: when the last chat closed, the auth token needed for
// post-session transcript downloads, and a pending post-chat survey.
package statestore
