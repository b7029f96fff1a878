package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tlongwell-block/goose/pkg/models"
)

const (
	defaultOpenAIModel          = "gpt-4o"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	MaxTokens      int
}

// OpenAIProvider implements Provider (and Embedder) using the OpenAI chat
// completions and embeddings APIs.
type OpenAIProvider struct {
	client         *openai.Client
	model          string
	embeddingModel string
	maxTokens      int
}

// NewOpenAIProvider creates a provider from config.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = defaultOpenAIEmbeddingModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		maxTokens:      config.MaxTokens,
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// ModelConfig returns the configured model.
func (p *OpenAIProvider) ModelConfig() ModelConfig {
	return ModelConfig{ModelName: p.model}
}

// Complete runs one non-streaming completion turn.
func (p *OpenAIProvider) Complete(ctx context.Context, system string, messages []models.Message, tools []models.Tool) (models.Message, Usage, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertOpenAIMessages(messages, system),
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return models.Message{}, Usage{}, NewProviderError(p.Name(), p.model, err)
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, Usage{}, NewProviderError(p.Name(), p.model, errors.New("no choices returned"))
	}

	choice := resp.Choices[0].Message
	msg := models.NewAssistantMessage()
	if choice.Content != "" {
		msg = msg.WithText(choice.Content)
	}
	for _, tc := range choice.ToolCalls {
		msg = msg.WithToolRequest(tc.ID, models.ToolCall{
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	return msg, usage, nil
}

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

func convertOpenAIMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		oaiMsg := openai.ChatCompletionMessage{Role: role}
		var toolResponses []openai.ChatCompletionMessage

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentTypeText, models.ContentTypeContextLengthExceeded:
				if part.Text != nil {
					oaiMsg.Content += part.Text.Text
				}
			case models.ContentTypeToolRequest:
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   part.ToolRequest.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      part.ToolRequest.ToolCall.Name,
						Arguments: string(part.ToolRequest.ToolCall.Arguments),
					},
				})
			case models.ContentTypeToolResponse:
				resp := part.ToolResponse
				content := resp.Error
				if !resp.IsError {
					content = models.ConcatText(resp.Content)
				}
				toolResponses = append(toolResponses, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: resp.ID,
				})
			}
		}

		if oaiMsg.Content != "" || len(oaiMsg.ToolCalls) > 0 {
			result = append(result, oaiMsg)
		}
		result = append(result, toolResponses...)
	}

	return result
}

func convertOpenAITools(tools []models.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(tool.InputSchema),
			},
		}
	}
	return result
}
