package character

import (
	"fmt"
	"strings"
)

// Violation records one structural problem found during validation.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string { return fmt.Sprintf("%s: %s", v.Field, v.Message) }

// ValidationError reports every structural violation of a definition at once
// so callers can fix a malformed character in a single pass.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "invalid character definition: " + strings.Join(msgs, "; ")
}

// Validate structurally checks a definition against the required shape. It
// returns nil when the definition is well formed and a *ValidationError
// enumerating every violation otherwise. Validate never mutates state.
func Validate(def Definition) error {
	var vs []Violation

	add := func(field, format string, args ...any) {
		vs = append(vs, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(def.Name) == "" {
		add("name", "must not be empty")
	}
	requireList := func(field string, list []string) {
		if len(list) == 0 {
			add(field, "must contain at least one entry")
		}
	}
	requireList("bio", def.Bio)
	requireList("lore", def.Lore)
	requireList("knowledge", def.Knowledge)
	requireList("topics", def.Topics)
	requireList("adjectives", def.Adjectives)
	if len(def.Style.Flatten()) == 0 {
		add("style", "must contain at least one entry across all/chat/post")
	}

	for i, transcript := range def.MessageExamples {
		validateTranscript(fmt.Sprintf("messageExamples[%d]", i), transcript, add)
	}

	for i, act := range def.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if strings.TrimSpace(act.Name) == "" {
			add(field+".name", "must not be empty")
		}
		if strings.TrimSpace(act.Description) == "" {
			add(field+".description", "must not be empty")
		}
		if len(act.Similes) == 0 {
			add(field+".similes", "must contain at least one entry")
		}
		if len(act.Examples) == 0 {
			add(field+".examples", "must contain at least one example transcript")
		}
		for j, transcript := range act.Examples {
			validateTranscript(fmt.Sprintf("%s.examples[%d]", field, j), transcript, add)
		}
		for j, p := range act.Parameters {
			pfield := fmt.Sprintf("%s.parameters[%d]", field, j)
			if strings.TrimSpace(p.Name) == "" {
				add(pfield+".name", "must not be empty")
			}
			if !p.Type.Valid() {
				add(pfield+".type", "must be one of number, boolean, string; got %q", p.Type)
			}
		}
	}

	if len(vs) > 0 {
		return &ValidationError{Violations: vs}
	}
	return nil
}

func validateTranscript(field string, transcript []ExampleMessage, add func(field, format string, args ...any)) {
	if len(transcript) == 0 {
		add(field, "transcript must contain at least one message")
		return
	}
	for i, msg := range transcript {
		if strings.TrimSpace(msg.User) == "" {
			add(fmt.Sprintf("%s[%d].user", field, i), "must not be empty")
		}
		if strings.TrimSpace(msg.Text) == "" {
			add(fmt.Sprintf("%s[%d].text", field, i), "must not be empty")
		}
	}
}
