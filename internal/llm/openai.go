package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrOpenAINoAPIKey = fmt.Errorf("openai: api key not configured")

// OpenAIProvider uses the official openai-go client (Chat Completions).
// Inline media is not wired for this provider; callers fall back to text.
type OpenAIProvider struct {
	apiKey  string
	model   string
	timeout time.Duration
	client  *openai.Client
}

func NewOpenAIProvider(apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{apiKey: strings.TrimSpace(apiKey), model: strings.TrimSpace(model), timeout: timeout}
}

func (p *OpenAIProvider) ensureClient() error {
	if p.apiKey == "" {
		return ErrOpenAINoAPIKey
	}
	if p.client == nil {
		c := openai.NewClient(option.WithAPIKey(p.apiKey))
		p.client = &c
	}
	return nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := p.ensureClient(); err != nil {
		return "", err
	}
	if req.Media != nil {
		return "", fmt.Errorf("openai: inline media not supported")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	model := p.model
	if model == "" {
		model = "gpt-4o-mini"
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Role == "model" {
			messages = append(messages, openai.AssistantMessage(m.Text))
			continue
		}
		messages = append(messages, openai.UserMessage(m.Text))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
