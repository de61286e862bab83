package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/personamesh/core"
)

// Message is a parsed dialogue completion: natural-language text plus the
// action the model optionally selected.
type Message struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

// GenerateMessageResponse renders one dialogue completion for the given
// prompt and parses it into a Message. Backends are instructed to answer as a
// JSON object with "text" and optional "action" fields; completions that are
// not valid JSON are accepted verbatim as plain text. A nil Message (no
// error) means the backend returned nothing usable and the caller should
// surface a generation failure.
func GenerateMessageResponse(ctx context.Context, c core.Completer, prompt string, class core.ModelClass) (*Message, error) {
	completion, err := c.Complete(ctx, prompt, class)
	if err != nil {
		return nil, fmt.Errorf("message generation: %w", err)
	}
	completion = strings.TrimSpace(stripCodeFence(completion))
	if completion == "" {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(completion), &msg); err == nil && msg.Text != "" {
		return &msg, nil
	}
	return &Message{Text: completion}, nil
}

// GenerateObject invokes the backend in structured mode against the given
// schema. A nil map (no error) means the backend returned no object.
func GenerateObject(ctx context.Context, c core.Completer, prompt string, schema map[string]any, class core.ModelClass) (map[string]any, error) {
	obj, err := c.CompleteObject(ctx, prompt, schema, class)
	if err != nil {
		return nil, fmt.Errorf("object generation: %w", err)
	}
	return obj, nil
}

// stripCodeFence removes a surrounding markdown code fence, a common model
// habit when asked for JSON.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
