package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AnthropicClusterer clusters through the Messages API
type AnthropicClusterer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClusterer creates a clusterer; Model is required
func NewAnthropicClusterer(cfg Config) (*AnthropicClusterer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model must be specified")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicClusterer{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeoutOr(cfg.Timeout, 60*time.Second)},
	}, nil
}

func (c *AnthropicClusterer) Name() string {
	return "anthropic"
}

func (c *AnthropicClusterer) Cluster(ctx context.Context, keywords []string, k int) ([]Group, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildPrompt(keywords, k)},
		},
		Temperature: 0.2,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var resp anthropicResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+"/v1/messages", headers, req, &resp, func(body []byte) string {
		var apiErr anthropicError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return apiErr.Error.Type + " - " + apiErr.Error.Message
		}
		return string(body)
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("no content in Anthropic response")
	}

	return ParseGroups(resp.Content[0].Text, keywords)
}
