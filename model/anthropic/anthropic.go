// Package anthropic provides a model wrapper for the Anthropic Claude API.
// Structured output is implemented via forced tool use: the schema is exposed
// as a single tool the model must call, and the tool input is returned as the
// generated object.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/model"
)

// structuredToolName is the forced tool carrying the structured-output schema.
const structuredToolName = "emit_structured_output"

// Options configures the Anthropic model adapter (temperature, per-class
// model ids, max tokens, API key). Extend via functional options to
// preserve stability.
type Options struct {
	Small       anthropic.Model
	Medium      anthropic.Model
	Large       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

func defaultOptions() Options {
	return Options{
		Small:       anthropic.ModelClaude3_5HaikuLatest,
		Medium:      anthropic.ModelClaude3_5Sonnet20241022,
		Large:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

func (m *Model) modelFor(class core.ModelClass) anthropic.Model {
	switch class {
	case core.ModelClassSmall:
		return m.opts.Small
	case core.ModelClassLarge:
		return m.opts.Large
	default:
		return m.opts.Medium
	}
}

// Complete implements core.Completer via a single-turn message.
func (m *Model) Complete(ctx context.Context, prompt string, class core.ModelClass) (string, error) {
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       m.modelFor(class),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return text, nil
}

// CompleteObject implements core.Completer by forcing a tool call whose input
// schema is the requested structured-output schema. Returns nil when the
// model emitted no matching tool_use block.
func (m *Model) CompleteObject(ctx context.Context, prompt string, schema map[string]any, class core.ModelClass) (map[string]any, error) {
	inputSchema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}
	if properties, exists := schema["properties"]; exists {
		inputSchema.Properties = properties
	}
	if required, exists := schema["required"]; exists {
		switch req := required.(type) {
		case []string:
			inputSchema.Required = req
		case []interface{}:
			for _, r := range req {
				if s, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}
	}

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       m.modelFor(class),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		Tools:       []anthropic.ToolUnionParam{anthropic.ToolUnionParamOfTool(inputSchema, structuredToolName)},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: structuredToolName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		toolBlock := block.AsToolUse()
		if toolBlock.Name != structuredToolName {
			continue
		}
		data, err := json.Marshal(toolBlock.Input)
		if err != nil {
			return nil, nil
		}
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, nil
		}
		return obj, nil
	}
	return nil, nil
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:               string(m.opts.Medium),
		Provider:           "anthropic",
		SupportsStructured: true,
	}
}
