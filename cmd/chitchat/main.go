package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/chitchat-dev/chitchat/internal/ai"
	"github.com/chitchat-dev/chitchat/internal/chat"
	"github.com/chitchat-dev/chitchat/internal/config"
	"github.com/chitchat-dev/chitchat/internal/token"
)

type replListener struct{}

func (replListener) OnWaiting()              { fmt.Print(".") }
func (replListener) OnFragment(delta string) { fmt.Print(delta) }
func (replListener) OnChatSaved(id int64, title string) {
	fmt.Printf("\n>>> chat saved: id=%d title=%q\n", id, title)
}
func (replListener) OnDone(string)     { fmt.Println() }
func (replListener) OnError(err error) { fmt.Printf("\n>>> error: %v\n", err) }

func buildProvider(cfg config.Config) (ai.Provider, error) {
	reg := ai.NewRegistry()
	reg.Register("openai", func() (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	})
	reg.Register("ollama", func() (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL), nil
	})
	return reg.Get(cfg.AIProvider)
}

func buildCounter(cfg config.Config) token.Counter {
	switch cfg.Tokenizer {
	case "heuristic":
		return token.NewCached(token.NewHeuristic())
	default:
		return token.NewCached(token.NewTiktoken())
	}
}

func main() {
	cfg := config.Load()

	pflag.StringVar(&cfg.Model, "model", cfg.Model, "completion model")
	pflag.StringVar(&cfg.SystemMessage, "system-message", cfg.SystemMessage, "system message for new chats")
	pflag.IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "context window token budget")
	pflag.IntVar(&cfg.ReserveTokens, "reserve-tokens", cfg.ReserveTokens, "tokens reserved for the response")
	pflag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	temperature := pflag.Float64("temperature", 0, "sampling temperature")
	topP := pflag.Float64("top-p", 0, "nucleus sampling mass")
	pflag.Parse()

	if pflag.CommandLine.Changed("temperature") {
		cfg.Temperature = temperature
	}
	if pflag.CommandLine.Changed("top-p") {
		cfg.TopP = topP
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	store, err := chat.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	mgr := chat.NewManager(store, provider, buildCounter(cfg), chat.Options{
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

	fmt.Println("chitchat: type a prompt, --reset to clear context, ctrl-d to quit")
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			fmt.Println("\n>>> session ended")
			return
		}
		prompt := strings.TrimSpace(in.Text())
		switch {
		case prompt == "":
			continue
		case prompt == "--reset":
			mgr.ActiveSession().ResetContext()
			fmt.Println(">>> context has been reset")
			continue
		case prompt == "--chats":
			titles, err := mgr.ListChats(ctx)
			if err != nil {
				fmt.Printf(">>> error: %v\n", err)
				continue
			}
			for _, t := range titles {
				fmt.Printf(">>> %d: %s\n", t.ID, t.Title)
			}
			continue
		}

		fmt.Println(">>>")
		if err := mgr.Generate(ctx, prompt, replListener{}); err != nil {
			continue // the listener already reported it
		}

		used, err := mgr.TokensUsed()
		if err != nil {
			log.Fatalf("token count: %v", err)
		}
		active := mgr.ActiveSession()
		fmt.Printf(">>> tokens used: %d/%d\n", used, cfg.MaxTokens)
		fmt.Printf(">>> history: %d\n", len(active.History()))
		fmt.Printf(">>> context: %d\n", len(active.Context()))

		if ctx.Err() != nil {
			return
		}
	}
}
