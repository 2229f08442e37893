// Package generator produces channel post texts through an OpenAI-compatible
// chat completions endpoint.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "postbot/pkg/logx"
)

type Config struct {
	APIKey      string
	Model       string // e.g. "gpt-4o-mini"
	BaseURL     string // default https://api.openai.com/v1
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type Client struct {
	mu     sync.RWMutex
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func normalize(cfg Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return cfg
}

func New(cfg Config, log logx.Logger) *Client {
	cfg = normalize(cfg)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With(logx.String("comp", "generator")),
	}
}

// Apply swaps credentials and tuning at runtime (config hot reload).
// In-flight requests keep the client they started with.
func (c *Client) Apply(cfg Config) {
	cfg = normalize(cfg)
	c.mu.Lock()
	if cfg.Timeout != c.cfg.Timeout {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Client) snapshot() (Config, *http.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      float64   `json:"temperature,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GeneratePost writes a post body for the given format and keywords.
func (c *Client) GeneratePost(ctx context.Context, format, keywords, details string) (string, error) {
	cfg, _ := c.snapshot()
	c.log.Info("generating post text", logx.String("format", format))
	return c.complete(ctx, chatRequest{
		Model: cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(format, keywords, details)},
		},
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
	})
}

// ImproveText rewrites an existing draft following the operator's instructions.
func (c *Client) ImproveText(ctx context.Context, original, instructions string) (string, error) {
	cfg, _ := c.snapshot()
	return c.complete(ctx, chatRequest{
		Model: cfg.Model,
		Messages: []message{
			{Role: "system", Content: improveSystemPrompt},
			{Role: "user", Content: improveUserPrompt(original, instructions)},
		},
		MaxTokens: cfg.MaxTokens,
		// Lower temperature for editing.
		Temperature: 0.5,
	})
}

// Ping performs a minimal completion to verify credentials and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	cfg, _ := c.snapshot()
	_, err := c.complete(ctx, chatRequest{
		Model:     cfg.Model,
		Messages:  []message{{Role: "user", Content: "ping"}},
		MaxTokens: 10,
	})
	return err
}

func (c *Client) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	cfg, client := c.snapshot()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("generator: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("generator: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generator: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generator: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("generator: decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("generator: api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("generator: empty response")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("generator: empty completion text")
	}
	return text, nil
}
