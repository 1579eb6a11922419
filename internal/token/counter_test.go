package token

import (
	"errors"
	"testing"
)

type countingStub struct {
	calls int
}

func (s *countingStub) Count(text, model string) (int, error) {
	s.calls++
	if model == "bogus" {
		return 0, ErrUnsupportedModel
	}
	return len(text), nil
}

func TestCached_Memoizes(t *testing.T) {
	stub := &countingStub{}
	c := NewCached(stub)

	for i := 0; i < 3; i++ {
		n, err := c.Count("hello", "m1")
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 5 {
			t.Fatalf("expected 5 tokens, got %d", n)
		}
	}
	if stub.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", stub.calls)
	}

	// A different model is a different cache entry.
	if _, err := c.Count("hello", "m2"); err != nil {
		t.Fatalf("count: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 inner calls, got %d", stub.calls)
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	stub := &countingStub{}
	c := NewCached(stub)

	for i := 0; i < 2; i++ {
		if _, err := c.Count("hello", "bogus"); !errors.Is(err, ErrUnsupportedModel) {
			t.Fatalf("expected ErrUnsupportedModel, got %v", err)
		}
	}
	if stub.calls != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d calls", stub.calls)
	}
}

func TestHeuristic(t *testing.T) {
	h := NewHeuristic()

	n, err := h.Count("", "any")
	if err != nil || n != 0 {
		t.Fatalf("empty text: n=%d err=%v", n, err)
	}

	n, err = h.Count("ab", "any")
	if err != nil || n != 1 {
		t.Fatalf("short text should clamp to 1: n=%d err=%v", n, err)
	}

	n, err = h.Count("twelve chars", "any")
	if err != nil || n != 3 {
		t.Fatalf("expected len/4 = 3: n=%d err=%v", n, err)
	}
}

func TestTiktoken_UnsupportedModel(t *testing.T) {
	tk := NewTiktoken()
	if _, err := tk.Count("hello", "definitely-not-a-model"); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
}
