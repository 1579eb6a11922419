package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chitchat-dev/chitchat/internal/ai"
	"github.com/chitchat-dev/chitchat/internal/chat"
	"github.com/chitchat-dev/chitchat/internal/config"
	"github.com/chitchat-dev/chitchat/internal/httpapi"
	"github.com/chitchat-dev/chitchat/internal/token"
)

func main() {
	cfg := config.Load()

	reg := ai.NewRegistry()
	reg.Register("openai", func() (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	})
	reg.Register("ollama", func() (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL), nil
	})
	provider, err := reg.Get(cfg.AIProvider)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	var base token.Counter
	switch cfg.Tokenizer {
	case "heuristic":
		base = token.NewHeuristic()
	default:
		base = token.NewTiktoken()
	}

	store, err := chat.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	mgr := chat.NewManager(store, provider, token.NewCached(base), chat.Options{
		Model:         cfg.Model,
		MaxTokens:     cfg.MaxTokens,
		ReserveTokens: cfg.ReserveTokens,
		Params: ai.Params{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
		WaitInterval: cfg.WaitInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Load(ctx); err != nil {
		log.Fatalf("load chats: %v", err)
	}
	mgr.NewSession(cfg.SystemMessage, "")

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(mgr),
	}

	go func() {
		log.Printf("chitchatd listening on %s (provider=%s model=%s)", cfg.HTTPAddr, cfg.AIProvider, cfg.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
