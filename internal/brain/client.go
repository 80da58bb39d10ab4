// Package brain is the boundary to the language-model service. The core
// treats generation as an opaque call; everything else in this repo depends
// only on the Client interface.
package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client defines the language-model service used for decomposition, agent
// work, and synthesis.
type Client interface {
	// Generate produces the full completion for prompt using the given
	// model. Implementations must honor ctx cancellation.
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "ollama" or "gemini"
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// DefaultConfig returns the local-first defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "ollama",
		BaseURL:  "http://localhost:11434",
		Model:    "qwen2.5-coder:1.5b",
		Timeout:  120 * time.Second,
	}
}

// NewFromConfig builds a Client for the configured provider.
func NewFromConfig(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllamaClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// OllamaClient talks to a local Ollama daemon's /api/generate endpoint,
// non-streaming.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the daemon at cfg.BaseURL.
func NewOllamaClient(cfg Config) *OllamaClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultConfig().BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate implements Client.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(ollamaRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ollamaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Response, nil
}
