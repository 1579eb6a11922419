package ai

import "context"

// Message is one role-tagged entry of an outbound completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params holds the optional sampling parameters. Nil fields are omitted from
// the outbound request entirely, never sent as null.
type Params struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// StreamRequest is a single streaming completion request.
type StreamRequest struct {
	Model    string
	Messages []Message
	Params   Params
}

// Provider produces a live sequence of text fragments for a completion
// request. It returns immediately with two channels; both are closed when
// streaming ends. A provider or transport failure is delivered on the error
// channel, never as a fragment. Fragments without text content are skipped.
type Provider interface {
	StreamChat(ctx context.Context, req StreamRequest) (<-chan string, <-chan error)
}
