// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API, including schema-constrained structured output via
// the json_schema response format.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/model"
)

// Options configure the OpenAI model adapter. The Small/Medium/Large fields
// map personamesh model classes onto concrete OpenAI model ids.
type Options struct {
	Small               string
	Medium              string
	Large               string
	Temperature         float64
	MaxCompletionTokens int64
	// APIKey overrides the environment-based credentials when the client is
	// constructed by NewModel. Ignored by NewModelFromClient.
	APIKey string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Small:               openai.ChatModelGPT4oMini,
		Medium:              openai.ChatModelGPT4o,
		Large:               openai.ChatModelGPT4o,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

func (m *Model) modelFor(class core.ModelClass) string {
	switch class {
	case core.ModelClassSmall:
		return m.opts.Small
	case core.ModelClassLarge:
		return m.opts.Large
	default:
		return m.opts.Medium
	}
}

// Complete implements core.Completer via a single-turn chat completion.
func (m *Model) Complete(ctx context.Context, prompt string, class core.ModelClass) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:               m.modelFor(class),
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteObject implements core.Completer using the json_schema response
// format. Returns nil when the backend produced no parseable object.
func (m *Model) CompleteObject(ctx context.Context, prompt string, schema map[string]any, class core.ModelClass) (map[string]any, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:               m.modelFor(class),
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "structured_output",
					Schema: schema,
				},
			},
		},
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &obj); err != nil {
		return nil, nil
	}
	return obj, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:               m.opts.Medium,
		Provider:           "openai",
		SupportsStructured: true,
	}
}
