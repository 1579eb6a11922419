package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/chitchat-dev/chitchat/internal/ai"
)

// stubCounter returns fixed costs per text, ignoring the model unless an
// entry for (text, model) exists. Unknown text costs its length in bytes.
type stubCounter struct {
	mu    sync.Mutex
	costs map[string]int
	calls int
}

func newStubCounter(costs map[string]int) *stubCounter {
	if costs == nil {
		costs = map[string]int{}
	}
	return &stubCounter{costs: costs}
}

func (c *stubCounter) Count(text, model string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if n, ok := c.costs[text+"|"+model]; ok {
		return n, nil
	}
	if n, ok := c.costs[text]; ok {
		return n, nil
	}
	return len(text), nil
}

// scriptedProvider replays a fixed set of chunks, optionally failing at the
// end, and records the request it was given.
type scriptedProvider struct {
	mu      sync.Mutex
	chunks  []string
	err     error
	lastReq ai.StreamRequest

	// When non-nil, StreamChat signals started and then blocks until release
	// is closed before emitting anything.
	started chan struct{}
	release chan struct{}
}

func (p *scriptedProvider) StreamChat(ctx context.Context, req ai.StreamRequest) (<-chan string, <-chan error) {
	p.mu.Lock()
	p.lastReq = req
	chunks := append([]string(nil), p.chunks...)
	failWith := p.err
	started, release := p.started, p.release
	p.mu.Unlock()

	out := make(chan string, len(chunks))
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		if started != nil {
			close(started)
			<-release
		}
		for _, c := range chunks {
			out <- c
		}
		if failWith != nil {
			errs <- failWith
		}
	}()
	return out, errs
}

func (p *scriptedProvider) last() ai.StreamRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

// recordListener captures every callback for assertions.
type recordListener struct {
	mu        sync.Mutex
	waits     int
	fragments []string
	saved     []int64
	done      []string
	errors    []error
}

func (l *recordListener) OnWaiting() {
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
}

func (l *recordListener) OnFragment(delta string) {
	l.mu.Lock()
	l.fragments = append(l.fragments, delta)
	l.mu.Unlock()
}

func (l *recordListener) OnChatSaved(id int64, title string) {
	l.mu.Lock()
	l.saved = append(l.saved, id)
	l.mu.Unlock()
}

func (l *recordListener) OnDone(response string) {
	l.mu.Lock()
	l.done = append(l.done, response)
	l.mu.Unlock()
}

func (l *recordListener) OnError(err error) {
	l.mu.Lock()
	l.errors = append(l.errors, err)
	l.mu.Unlock()
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := gorm.Open(gormsqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := NewStore(db)
	if err := st.EnsureSchema(); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return st
}
