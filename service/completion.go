package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/AnTengye/dealflow/config"
)

// ErrCompletionDisabled is returned by the completer used when no AI provider is configured
var ErrCompletionDisabled = errors.New("ai completion is not configured")

// Completer sends one prompt to a language model and returns its text answer
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// NewCompleter builds the completer selected by cfg.Provider
func NewCompleter(ctx context.Context, cfg *config.AIConfig) (Completer, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPCompleter(cfg), nil
	case "vertex":
		return NewVertexCompleter(ctx, cfg)
	case "none", "":
		return DisabledCompleter{}, nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
}

// DisabledCompleter fails every call with ErrCompletionDisabled
type DisabledCompleter struct{}

func (DisabledCompleter) Complete(context.Context, string, string) (string, error) {
	return "", ErrCompletionDisabled
}

// HTTPCompleter talks to an OpenAI compatible chat completions endpoint
type HTTPCompleter struct {
	config     *config.AIConfig
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to {api_url}/chat/completions
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse is the subset of the completion response we read
type ChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewHTTPCompleter(cfg *config.AIConfig) *HTTPCompleter {
	return &HTTPCompleter{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, prompt, system string) (string, error) {
	reqBody := ChatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.APIURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result ChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w, status: %d", err, resp.StatusCode)
	}
	if result.Error != nil {
		return "", fmt.Errorf("completion API error: %s", result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API returned status %d", resp.StatusCode)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("completion API returned no choices")
	}

	return result.Choices[0].Message.Content, nil
}
