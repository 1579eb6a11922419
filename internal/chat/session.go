package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chitchat-dev/chitchat/internal/ai"
	"github.com/chitchat-dev/chitchat/internal/token"
)

const timestampLayout = "2006-01-02 15:04:05"

// Session is one conversation. It owns two views of its turns:
//
//   - history: the complete, append-only record of the conversation
//   - context: the subset of history sent to the provider on the next
//     completion; it shrinks from the front via trimming, grows only by
//     appending the newest completed turn, and can be reset to empty
//
// Every context entry is also in history, in the same relative order.
type Session struct {
	mu sync.Mutex

	id            int64 // 0 until persisted
	title         string
	systemMessage string
	dateStarted   string
	history       []Request
	context       []Request

	provider ai.Provider
	counter  token.Counter
}

// NewSession creates a fresh, unsaved session. An empty title defaults to the
// start date.
func NewSession(provider ai.Provider, counter token.Counter, systemMessage, title string) *Session {
	dateStarted := time.Now().Format(timestampLayout)
	if title == "" {
		title = dateStarted
	}
	return &Session{
		title:         title,
		systemMessage: systemMessage,
		dateStarted:   dateStarted,
		provider:      provider,
		counter:       counter,
	}
}

// restoreSession rebuilds a persisted session from storage. History and
// context start with equal contents but are independently owned slices, so
// trimming or resetting the context after a reload cannot corrupt history.
func restoreSession(provider ai.Provider, counter token.Counter, id int64, title, systemMessage, dateStarted string, history []Request) *Session {
	h := make([]Request, len(history))
	copy(h, history)
	c := make([]Request, len(history))
	copy(c, history)
	return &Session{
		id:            id,
		title:         title,
		systemMessage: systemMessage,
		dateStarted:   dateStarted,
		history:       h,
		context:       c,
		provider:      provider,
		counter:       counter,
	}
}

// ID is the store-assigned chat id, or 0 while the session is unsaved.
func (s *Session) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) setID(id int64) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

func (s *Session) SystemMessage() string { return s.systemMessage }

func (s *Session) DateStarted() string { return s.dateStarted }

// History returns a copy of the full conversation record.
func (s *Session) History() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.history...)
}

// Context returns a copy of the current completion context.
func (s *Session) Context() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.context...)
}

// ResetContext empties the context. History is unaffected.
func (s *Session) ResetContext() {
	s.mu.Lock()
	s.context = nil
	s.mu.Unlock()
}

// TokensUsed is the cost of the next completion's fixed part: the system
// message under the given model plus every context entry under its own
// stored model.
func (s *Session) TokensUsed(model string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokensUsedLocked(model)
}

func (s *Session) tokensUsedLocked(model string) (int, error) {
	used, err := s.counter.Count(s.systemMessage, model)
	if err != nil {
		return 0, err
	}
	for _, req := range s.context {
		n, err := req.Length(s.counter)
		if err != nil {
			return 0, err
		}
		used += n
	}
	return used, nil
}

// TrimContext drops the earliest context entries until the context, the new
// prompt and the reserve fit within maxTokens, or the context is empty.
// History is never touched.
func (s *Session) TrimContext(model, prompt string, maxTokens, reserveTokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trimContextLocked(model, prompt, maxTokens, reserveTokens)
}

func (s *Session) trimContextLocked(model, prompt string, maxTokens, reserveTokens int) error {
	if len(s.context) == 0 {
		return nil
	}
	promptTokens, err := s.counter.Count(prompt, model)
	if err != nil {
		return err
	}
	for len(s.context) > 0 {
		used, err := s.tokensUsedLocked(model)
		if err != nil {
			return err
		}
		if used+promptTokens+reserveTokens <= maxTokens {
			break
		}
		s.context = s.context[1:]
	}
	return nil
}

// CompletionOptions parameterizes one streaming completion.
type CompletionOptions struct {
	Model         string
	Prompt        string
	Params        ai.Params
	MaxTokens     int
	ReserveTokens int
}

// CreateCompletion trims the context, sends it with the new prompt to the
// provider, and forwards fragments as they arrive. Only if the provider
// stream completes without failure is the finished turn appended to history
// and context; on failure nothing is recorded and the error is delivered on
// the second channel. Both channels are closed when the completion ends.
func (s *Session) CreateCompletion(ctx context.Context, opts CompletionOptions) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		s.mu.Lock()
		if err := s.trimContextLocked(opts.Model, opts.Prompt, opts.MaxTokens, opts.ReserveTokens); err != nil {
			s.mu.Unlock()
			errs <- err
			return
		}
		messages := s.buildMessagesLocked(opts.Prompt)
		s.mu.Unlock()

		chunks, perrs := s.provider.StreamChat(ctx, ai.StreamRequest{
			Model:    opts.Model,
			Messages: messages,
			Params:   opts.Params,
		})

		var b strings.Builder
		for c := range chunks {
			b.WriteString(c)
			out <- c
		}
		if err, ok := <-perrs; ok && err != nil {
			errs <- err
			return
		}

		req := Request{
			Model:            opts.Model,
			Prompt:           opts.Prompt,
			Response:         b.String(),
			Timestamp:        time.Now().Format(timestampLayout),
			Temperature:      opts.Params.Temperature,
			TopP:             opts.Params.TopP,
			PresencePenalty:  opts.Params.PresencePenalty,
			FrequencyPenalty: opts.Params.FrequencyPenalty,
		}

		s.mu.Lock()
		s.history = append(s.history, req)
		s.context = append(s.context, req)
		s.mu.Unlock()
	}()

	return out, errs
}

func (s *Session) buildMessagesLocked(prompt string) []ai.Message {
	messages := make([]ai.Message, 0, 2*len(s.context)+2)
	messages = append(messages, ai.Message{Role: "system", Content: s.systemMessage})
	for _, req := range s.context {
		messages = append(messages, ai.Message{Role: "user", Content: req.Prompt})
		messages = append(messages, ai.Message{Role: "assistant", Content: req.Response})
	}
	messages = append(messages, ai.Message{Role: "user", Content: prompt})
	return messages
}

// LastRequest returns the most recent turn, or nil for a fresh session.
func (s *Session) LastRequest() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	req := s.history[len(s.history)-1]
	return &req
}

// LastResponse returns the response of the most recent turn.
func (s *Session) LastResponse() (string, bool) {
	req := s.LastRequest()
	if req == nil {
		return "", false
	}
	return req.Response, true
}
