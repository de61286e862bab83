package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/personamesh/core"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name               string `json:"name"`
	Provider           string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsStructured bool   `json:"supports_structured"`
}

// Model is the generative backend interface runtimes are constructed with.
// It extends the minimal core.Completer contract with provider metadata.
type Model interface {
	core.Completer

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Complete returns canned completions keyed by prompt substring; CompleteObject
// returns canned objects in FIFO order.
type MockModel struct {
	info        Info
	completions map[string]string
	objects     []map[string]any
	fallback    string

	// Prompts records every prompt seen, in order, for test assertions.
	Prompts []string
}

// NewMockModel constructs a MockModel with structured output enabled.
func NewMockModel() *MockModel {
	return &MockModel{
		info: Info{
			Name:               "mock",
			Provider:           "mock",
			SupportsStructured: true,
		},
		completions: make(map[string]string),
	}
}

// AddCompletion registers a canned completion returned when the prompt
// contains the trigger substring.
func (m *MockModel) AddCompletion(trigger, completion string) { m.completions[trigger] = completion }

// SetFallback sets the completion returned when no trigger matches.
func (m *MockModel) SetFallback(completion string) { m.fallback = completion }

// AddObject queues a canned structured-output object.
func (m *MockModel) AddObject(obj map[string]any) { m.objects = append(m.objects, obj) }

// Complete implements core.Completer.
func (m *MockModel) Complete(ctx context.Context, prompt string, _ core.ModelClass) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.Prompts = append(m.Prompts, prompt)
	for trigger, completion := range m.completions {
		if trigger != "" && strings.Contains(prompt, trigger) {
			return completion, nil
		}
	}
	if m.fallback != "" {
		return m.fallback, nil
	}
	return fmt.Sprintf(`{"text": "Mock response to: %s"}`, lastLine(prompt)), nil
}

// CompleteObject implements core.Completer; returns nil when no canned object
// remains, mimicking a backend that produced nothing usable.
func (m *MockModel) CompleteObject(ctx context.Context, prompt string, _ map[string]any, _ core.ModelClass) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Prompts = append(m.Prompts, prompt)
	if len(m.objects) == 0 {
		return nil, nil
	}
	obj := m.objects[0]
	m.objects = m.objects[1:]
	return obj, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
