package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClusterer clusters through the Chat Completions API
type OpenAIClusterer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClusterer creates a clusterer; BaseURL points it at any
// compatible endpoint
func NewOpenAIClusterer(cfg Config) (*OpenAIClusterer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClusterer{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeoutOr(cfg.Timeout, 60*time.Second),
	}, nil
}

func (c *OpenAIClusterer) Name() string {
	return "openai"
}

func (c *OpenAIClusterer) Cluster(ctx context.Context, keywords []string, k int) ([]Group, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(keywords, k)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return ParseGroups(resp.Choices[0].Message.Content, keywords)
}
