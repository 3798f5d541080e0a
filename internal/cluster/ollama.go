package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaClusterer clusters with a local Ollama model
type OllamaClusterer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaClusterer creates a clusterer against BaseURL (default localhost:11434)
func NewOllamaClusterer(cfg Config) (*OllamaClusterer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaClusterer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		// local models are slow on large keyword lists
		httpClient: &http.Client{Timeout: timeoutOr(cfg.Timeout, 5*time.Minute)},
	}, nil
}

func (c *OllamaClusterer) Name() string {
	return "ollama"
}

func (c *OllamaClusterer) Cluster(ctx context.Context, keywords []string, k int) ([]Group, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	req := ollamaRequest{
		Model:   c.model,
		Prompt:  BuildPrompt(keywords, k),
		System:  systemPrompt,
		Format:  "json",
		Options: ollamaOptions{Temperature: 0.2},
	}

	var resp ollamaResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", nil, req, &resp, func(body []byte) string {
		var apiErr ollamaError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return apiErr.Error
		}
		return string(body)
	})
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}

	return ParseGroups(resp.Response, keywords)
}
