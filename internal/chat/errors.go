package chat

import "errors"

var (
	// ErrAlreadyGenerating means a caller submitted a prompt while another
	// generation was still in flight. No state changed.
	ErrAlreadyGenerating = errors.New("chat: a generation is already in flight")

	// ErrChatNotFound means the given chat id is unknown.
	ErrChatNotFound = errors.New("chat: chat not found")

	// ErrSessionLost means the active session could not be resolved to a
	// persisted id. This is a programming error, not a runtime condition.
	ErrSessionLost = errors.New("chat: active session missing from registry")
)
