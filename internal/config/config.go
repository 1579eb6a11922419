package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// DBPath is the sqlite file holding chat history.
	DBPath string

	// AI provider
	AIProvider    string // "openai" or "ollama"
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OllamaBaseURL string

	// Generation settings
	Model         string
	SystemMessage string
	MaxTokens     int
	ReserveTokens int
	Temperature   *float64
	TopP          *float64

	// Tokenizer: "tiktoken" (exact) or "heuristic"
	Tokenizer string

	// WaitInterval between "still waiting" signals before the first fragment.
	WaitInterval time.Duration

	// HTTPAddr for the API server.
	HTTPAddr string
}

func Load() Config {
	dbPath := os.Getenv("CHITCHAT_DB")
	if dbPath == "" {
		dbPath = "chat_history.sqlite"
	}

	provider := os.Getenv("AI_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	openAIBaseURL := os.Getenv("OPENAI_BASE_URL")
	if openAIBaseURL == "" {
		openAIBaseURL = "https://api.openai.com/v1"
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}

	model := os.Getenv("CHITCHAT_MODEL")
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	systemMessage := os.Getenv("CHITCHAT_SYSTEM_MESSAGE")
	if systemMessage == "" {
		systemMessage = "You're a helpful assistant."
	}

	maxTokens := 4097
	if v := os.Getenv("CHITCHAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}

	reserveTokens := maxTokens / 10
	if v := os.Getenv("CHITCHAT_RESERVE_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			reserveTokens = n
		}
	}

	tokenizer := os.Getenv("CHITCHAT_TOKENIZER")
	if tokenizer == "" {
		tokenizer = "tiktoken"
	}

	waitInterval := 500 * time.Millisecond
	if v := os.Getenv("CHITCHAT_WAIT_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			waitInterval = time.Duration(n) * time.Millisecond
		}
	}

	httpAddr := os.Getenv("CHITCHAT_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	return Config{
		DBPath:        dbPath,
		AIProvider:    provider,
		OpenAIBaseURL: openAIBaseURL,
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OllamaBaseURL: ollamaBaseURL,
		Model:         model,
		SystemMessage: systemMessage,
		MaxTokens:     maxTokens,
		ReserveTokens: reserveTokens,
		Temperature:   floatEnv("CHITCHAT_TEMPERATURE"),
		TopP:          floatEnv("CHITCHAT_TOP_P"),
		Tokenizer:     tokenizer,
		WaitInterval:  waitInterval,
		HTTPAddr:      httpAddr,
	}
}

// floatEnv returns nil when the variable is unset, so optional sampling
// parameters stay absent rather than defaulting to zero.
func floatEnv(name string) *float64 {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
