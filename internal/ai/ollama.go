package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider streams completions from a local Ollama instance.
type OllamaProvider struct {
	BaseURL string
	Client  *http.Client
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string             `json:"model"`
	Messages []ollamaMsg        `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  map[string]float64 `json:"options,omitempty"`
}

type ollamaStreamResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func ollamaOptions(p Params) map[string]float64 {
	opts := make(map[string]float64)
	if p.Temperature != nil {
		opts["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		opts["top_p"] = *p.TopP
	}
	if p.PresencePenalty != nil {
		opts["presence_penalty"] = *p.PresencePenalty
	}
	if p.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *p.FrequencyPenalty
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// StreamChat streams assistant content chunks from the NDJSON chat endpoint.
func (p *OllamaProvider) StreamChat(ctx context.Context, req StreamRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if p.Client == nil {
			errs <- errors.New("ollama: http client is nil")
			return
		}
		model := strings.TrimSpace(req.Model)
		if model == "" {
			errs <- errors.New("ollama: model is required")
			return
		}

		reqBody := ollamaChatReq{
			Model:   model,
			Stream:  true,
			Options: ollamaOptions(req.Params),
			Messages: func() []ollamaMsg {
				out := make([]ollamaMsg, 0, len(req.Messages))
				for _, m := range req.Messages {
					out = append(out, ollamaMsg{Role: m.Role, Content: m.Content})
				}
				return out
			}(),
		}

		b, err := json.Marshal(reqBody)
		if err != nil {
			errs <- err
			return
		}

		url := fmt.Sprintf("%s/api/chat", p.BaseURL)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		// Streaming can outlast the default timeout; ctx controls it instead.
		if p.Client.Timeout < 30*time.Second {
			p.Client.Timeout = 0
		}

		resp, err := p.Client.Do(httpReq)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- fmt.Errorf("ollama: status %d", resp.StatusCode)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded ollamaStreamResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != "" {
				errs <- errors.New(decoded.Error)
				return
			}

			if decoded.Message.Content != "" {
				chunks <- decoded.Message.Content
			}

			if decoded.Done {
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return chunks, errs
}
