package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, chunks <-chan string, errs <-chan error) (string, error) {
	t.Helper()
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	if err, ok := <-errs; ok && err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

func TestOpenAIProvider_StreamChat(t *testing.T) {
	var got openAIChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n") // no content, skipped
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key")
	temp := 0.7
	chunks, errs := p.StreamChat(context.Background(), StreamRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []Message{{Role: "user", Content: "hi"}},
		Params:   Params{Temperature: &temp},
	})

	out, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if out != "Hello" {
		t.Fatalf("unexpected output: %q", out)
	}

	if !got.Stream {
		t.Fatalf("expected stream=true in request")
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", got.Temperature)
	}
	// Unset parameters must be omitted, not null.
	if got.TopP != nil || got.PresencePenalty != nil || got.FrequencyPenalty != nil {
		t.Fatalf("expected unset params to stay nil: %+v", got.Params)
	}
}

func TestOpenAIProvider_OmitsUnsetParams(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key")
	topP := 0.9
	chunks, errs := p.StreamChat(context.Background(), StreamRequest{
		Model:  "gpt-3.5-turbo",
		Params: Params{TopP: &topP},
	})
	if _, err := collect(t, chunks, errs); err != nil {
		t.Fatalf("stream: %v", err)
	}

	if _, ok := raw["top_p"]; !ok {
		t.Fatalf("expected top_p in request body")
	}
	for _, key := range []string{"temperature", "presence_penalty", "frequency_penalty"} {
		if _, ok := raw[key]; ok {
			t.Fatalf("expected %s to be omitted from request body", key)
		}
	}
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key")
	chunks, errs := p.StreamChat(context.Background(), StreamRequest{Model: "gpt-3.5-turbo"})
	if _, err := collect(t, chunks, errs); err == nil {
		t.Fatalf("expected error on non-2xx status")
	}
}

func TestOpenAIProvider_MidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"rate limited\"}}\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key")
	chunks, errs := p.StreamChat(context.Background(), StreamRequest{Model: "gpt-3.5-turbo"})
	out, err := collect(t, chunks, errs)
	if err == nil {
		t.Fatalf("expected mid-stream error")
	}
	if out != "par" {
		t.Fatalf("expected partial output %q, got %q", "par", out)
	}
}

func TestOllamaProvider_StreamChat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, "{\"message\":{\"role\":\"assistant\",\"content\":\"Hi \"},\"done\":false}\n")
		fmt.Fprint(w, "{\"message\":{\"role\":\"assistant\",\"content\":\"there\"},\"done\":false}\n")
		fmt.Fprint(w, "{\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true}\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	chunks, errs := p.StreamChat(context.Background(), StreamRequest{
		Model:    "llama3:latest",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	out, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if out != "Hi there" {
		t.Fatalf("unexpected output: %q", out)
	}
	if got.Options != nil {
		t.Fatalf("expected no options when params are unset, got %v", got.Options)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Fake ", func() (Provider, error) {
		return NewOllamaProvider("http://localhost:1"), nil
	})

	if _, err := reg.Get("fake"); err != nil {
		t.Fatalf("expected registered provider, got %v", err)
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
