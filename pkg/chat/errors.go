package chat

import "errors"

var (
	// ErrBusy is returned when a submit targets a session that already has a
	// generation in flight. At most one assistant message may be streaming
	// per session.
	ErrBusy = errors.New("session has a generation in flight")

	// ErrSessionNotFound is returned for operations on an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptySubmit is returned when a submit carries no text and no
	// retained attachments.
	ErrEmptySubmit = errors.New("empty submit: text or attachments required")
)

// ErrorReplyText is the fixed user-visible string that replaces the
// assistant placeholder when the transport fails. It is the message content
// shown to the user; the failure is never propagated past the manager.
const ErrorReplyText = "I encountered a connection error. Please check your network or API status."
