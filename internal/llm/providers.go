package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ProviderConfig selects and authenticates a chat model.
type ProviderConfig struct {
	Model           string
	OpenAIKey       string
	OpenAIBaseURL   string
	AnthropicKey    string
	MaxOutputTokens int
}

// IsAnthropic reports whether model names a Claude model.
func IsAnthropic(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// NewChatModel builds the chat model for cfg.Model: claude-* goes to
// Anthropic, everything else to an OpenAI compatible endpoint.
func NewChatModel(ctx context.Context, cfg ProviderConfig) (model.BaseChatModel, error) {
	if IsAnthropic(cfg.Model) {
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrModelCallFailed)
		}
		return NewAnthropicModel(cfg.AnthropicKey, cfg.Model, cfg.MaxOutputTokens), nil
	}

	return NewOpenAIModel(ctx, cfg.OpenAIKey, cfg.Model, cfg.OpenAIBaseURL)
}

// NewOpenAIModel creates a chat model for an OpenAI compatible endpoint.
// An empty baseURL uses api.openai.com.
func NewOpenAIModel(ctx context.Context, apiKey, modelName, baseURL string) (model.BaseChatModel, error) {
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelName,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai chat model failed, err=%w", err)
	}
	return chat, nil
}

const defaultAnthropicMaxTokens = 4096

// AnthropicModel adapts the Anthropic Messages API to eino's BaseChatModel.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ model.BaseChatModel = (*AnthropicModel)(nil)

// NewAnthropicModel creates a Claude chat model. maxTokens <= 0 uses 4096.
func NewAnthropicModel(apiKey, modelName string, maxTokens int) *AnthropicModel {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     modelName,
		maxTokens: int64(maxTokens),
	}
}

// BuildParams converts eino messages into a Messages API request.
func (m *AnthropicModel) BuildParams(input []*schema.Message, opts ...model.Option) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
	}

	common := model.GetCommonOptions(&model.Options{}, opts...)
	if common.MaxTokens != nil {
		params.MaxTokens = int64(*common.MaxTokens)
	}
	if common.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*common.Temperature))
	}

	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{
				Type: "text",
				Text: msg.Content,
			})
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return params
}

func (m *AnthropicModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.BuildParams(input, opts...))
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &schema.Message{
		Role:    schema.Assistant,
		Content: sb.String(),
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: string(resp.StopReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     in,
				CompletionTokens: out,
				TotalTokens:      in + out,
			},
		},
	}, nil
}

// Stream is not used by the pipeline; it yields the full completion as one chunk.
func (m *AnthropicModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
