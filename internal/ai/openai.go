package ai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures the OpenAI-compatible generator adapter.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string // optional override for OpenAI-compatible endpoints
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
}

// OpenAIGenerator implements Generator against an OpenAI-compatible chat
// completion API.
type OpenAIGenerator struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAIGenerator builds the adapter. Defaults: gpt-4o-mini, 1024 max
// tokens.
func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}
}

// Generate runs one chat completion over the prior turns plus the new prompt.
func (g *OpenAIGenerator) Generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if g.opts.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: g.opts.SystemPrompt,
		})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.opts.Model,
		Messages:    msgs,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
