package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chitchat-dev/chitchat/internal/ai"
	"github.com/chitchat-dev/chitchat/internal/token"
)

// Listener observes one generation. Callbacks arrive from the goroutine
// driving the generation; OnWaiting may arrive from a ticker goroutine until
// the first fragment.
type Listener interface {
	OnWaiting()
	OnFragment(delta string)
	OnChatSaved(id int64, title string)
	OnDone(response string)
	OnError(err error)
}

type nopListener struct{}

func (nopListener) OnWaiting()                {}
func (nopListener) OnFragment(string)         {}
func (nopListener) OnChatSaved(int64, string) {}
func (nopListener) OnDone(string)             {}
func (nopListener) OnError(error)             {}

// Options are the generation settings shared by every turn.
type Options struct {
	Model         string
	MaxTokens     int
	ReserveTokens int
	Params        ai.Params
	WaitInterval  time.Duration
}

// Manager tracks the active session, the unsaved/persisted identity
// transition, and the single in-flight generation.
type Manager struct {
	store    *Store
	provider ai.Provider
	counter  token.Counter
	opts     Options

	mu         sync.Mutex
	active     *Session
	unsaved    *Session
	sessions   map[int64]*Session
	generating bool
}

func NewManager(store *Store, provider ai.Provider, counter token.Counter, opts Options) *Manager {
	if opts.ReserveTokens <= 0 {
		opts.ReserveTokens = opts.MaxTokens / 10
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = 500 * time.Millisecond
	}
	return &Manager{
		store:    store,
		provider: provider,
		counter:  counter,
		opts:     opts,
		sessions: make(map[int64]*Session),
	}
}

func (m *Manager) Options() Options { return m.opts }

// Load reconstructs every persisted chat from the store. Called once at
// startup.
func (m *Manager) Load(ctx context.Context) error {
	rows, err := m.store.FetchFullHistory(ctx)
	if err != nil {
		return err
	}
	sessions := RestoreSessions(rows, m.provider, m.counter)

	m.mu.Lock()
	for _, s := range sessions {
		m.sessions[s.ID()] = s
	}
	m.mu.Unlock()
	return nil
}

// ActiveSession returns the current session, creating a fresh unsaved one on
// first access.
func (m *Manager) ActiveSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSessionLocked()
}

func (m *Manager) activeSessionLocked() *Session {
	if m.active == nil {
		s := NewSession(m.provider, m.counter, "", "")
		m.active = s
		m.unsaved = s
	}
	return m.active
}

// NewSession replaces the active session with a freshly created unsaved one.
func (m *Manager) NewSession(systemMessage, title string) *Session {
	s := NewSession(m.provider, m.counter, systemMessage, title)
	m.mu.Lock()
	m.active = s
	m.unsaved = s
	m.mu.Unlock()
	return s
}

// SetActive switches to a previously loaded or persisted chat.
func (m *Manager) SetActive(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrChatNotFound
	}
	m.active = s
	return nil
}

// ListChats returns the persisted (id, title) pairs in insertion order.
func (m *Manager) ListChats(ctx context.Context) ([]ChatTitle, error) {
	return m.store.ListChatTitles(ctx)
}

// Rename updates the title in memory and in the store.
func (m *Manager) Rename(ctx context.Context, id int64, title string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrChatNotFound
	}
	if err := m.store.RenameChat(ctx, id, title); err != nil {
		return err
	}
	s.SetTitle(title)
	return nil
}

// Delete forgets the chat. Persisted chats are removed from the store too; a
// chat that was never saved has nothing to remove there.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrChatNotFound
	}
	delete(m.sessions, id)
	if m.active == s {
		m.active = nil
	}
	wasUnsaved := m.unsaved == s
	if wasUnsaved {
		m.unsaved = nil
	}
	m.mu.Unlock()

	if wasUnsaved {
		return nil
	}
	return m.store.DeleteChat(ctx, id)
}

// TokensUsed reports the active session's current context cost under the
// configured model.
func (m *Manager) TokensUsed() (int, error) {
	return m.ActiveSession().TokensUsed(m.opts.Model)
}

// Generate runs one completion for the active session and persists the
// result. At most one generation may be in flight; a second call returns
// ErrAlreadyGenerating immediately. Fragments, the waiting signal, the
// unsaved-chat save and the final response or error all go to the listener.
func (m *Manager) Generate(ctx context.Context, prompt string, l Listener) error {
	if l == nil {
		l = nopListener{}
	}

	m.mu.Lock()
	if m.generating {
		m.mu.Unlock()
		return ErrAlreadyGenerating
	}
	m.generating = true
	sess := m.activeSessionLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.generating = false
		m.mu.Unlock()
	}()

	gen := ulid.Make().String()

	// Periodic "still waiting" signal until the first fragment arrives.
	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		t := time.NewTicker(m.opts.WaitInterval)
		defer t.Stop()
		for {
			select {
			case <-waitCtx.Done():
				return
			case <-t.C:
				l.OnWaiting()
			}
		}
	}()

	chunks, errs := sess.CreateCompletion(ctx, CompletionOptions{
		Model:         m.opts.Model,
		Prompt:        prompt,
		Params:        m.opts.Params,
		MaxTokens:     m.opts.MaxTokens,
		ReserveTokens: m.opts.ReserveTokens,
	})

	waiting := true
	for c := range chunks {
		if waiting {
			stopWaiting()
			waiting = false
		}
		l.OnFragment(c)
	}
	stopWaiting()

	if err, ok := <-errs; ok && err != nil {
		log.Printf("generation %s failed: %v", gen, err)
		l.OnError(err)
		return err
	}

	m.mu.Lock()
	isUnsaved := sess == m.unsaved
	m.mu.Unlock()

	var chatID int64
	if isUnsaved {
		id, err := m.store.SaveChat(ctx, sess)
		if err != nil {
			l.OnError(err)
			return err
		}
		sess.setID(id)
		m.mu.Lock()
		m.sessions[id] = sess
		m.unsaved = nil
		m.mu.Unlock()
		chatID = id
		l.OnChatSaved(id, sess.Title())
	} else {
		id, err := m.chatIDOf(sess)
		if err != nil {
			l.OnError(err)
			return err
		}
		chatID = id
	}

	last := sess.LastRequest()
	if err := m.store.SaveRequest(ctx, chatID, *last); err != nil {
		l.OnError(err)
		return err
	}

	response, _ := sess.LastResponse()
	log.Printf("generation %s done: chat=%d response_len=%d", gen, chatID, len(response))
	l.OnDone(response)
	return nil
}

// chatIDOf resolves a session to its persisted id by identity.
func (m *Manager) chatIDOf(sess *Session) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s == sess {
			return id, nil
		}
	}
	return 0, ErrSessionLost
}
