package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tlongwell-block/goose/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is required. Obtain from: https://console.anthropic.com/
	APIKey string

	// BaseURL overrides the API endpoint (optional).
	BaseURL string

	// Model is the model id used for completions.
	Model string

	// MaxTokens limits response length. Default: 4096.
	MaxTokens int
}

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider creates a provider from config.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.Model == "" {
		config.Model = defaultAnthropicModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(options...),
		model:     config.Model,
		maxTokens: config.MaxTokens,
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// ModelConfig returns the configured model.
func (p *AnthropicProvider) ModelConfig() ModelConfig {
	return ModelConfig{ModelName: p.model}
}

// Complete runs one non-streaming completion turn.
func (p *AnthropicProvider) Complete(ctx context.Context, system string, messages []models.Message, tools []models.Tool) (models.Message, Usage, error) {
	converted, err := convertAnthropicMessages(messages)
	if err != nil {
		return models.Message{}, Usage{}, NewProviderError(p.Name(), p.model, err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		converted, err := convertAnthropicTools(tools)
		if err != nil {
			return models.Message{}, Usage{}, NewProviderError(p.Name(), p.model, err)
		}
		params.Tools = converted
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.Message{}, Usage{}, NewProviderError(p.Name(), p.model, err)
	}

	msg := models.NewAssistantMessage()
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg = msg.WithText(block.Text)
		case "tool_use":
			msg = msg.WithToolRequest(block.ID, models.ToolCall{
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}

	usage := Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return msg, usage, nil
}

// convertAnthropicMessages maps conversation messages to the Messages API
// format. Tool responses attach to user messages as tool_result blocks;
// tool requests attach to assistant messages as tool_use blocks.
func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		for _, part := range msg.Content {
			switch part.Type {
			case models.ContentTypeText, models.ContentTypeContextLengthExceeded:
				if part.Text != nil && part.Text.Text != "" {
					content = append(content, anthropic.NewTextBlock(part.Text.Text))
				}
			case models.ContentTypeToolRequest:
				var input map[string]any
				if len(part.ToolRequest.ToolCall.Arguments) > 0 {
					if err := json.Unmarshal(part.ToolRequest.ToolCall.Arguments, &input); err != nil {
						return nil, fmt.Errorf("invalid tool call arguments: %w", err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(
					part.ToolRequest.ID,
					input,
					part.ToolRequest.ToolCall.Name,
				))
			case models.ContentTypeToolResponse:
				resp := part.ToolResponse
				text := resp.Error
				if !resp.IsError {
					text = models.ConcatText(resp.Content)
				}
				content = append(content, anthropic.NewToolResultBlock(resp.ID, text, resp.IsError))
			}
			// Confirmation and frontend request parts are agent-internal and
			// never sent to the provider.
		}

		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func convertAnthropicTools(tools []models.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}
