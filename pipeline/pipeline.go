// Package pipeline drives the per-message request/response cycle: it records
// the inbound message, composes generation state, asks the generative backend
// for a dialogue completion, dispatches at most one declared action, and
// assembles the outward-facing result.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/personamesh/action"
	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/conversation"
	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/internal/util"
	"github.com/hupe1980/personamesh/logging"
	"github.com/hupe1980/personamesh/model"
)

// Call is one structured action invocation carried in a result.
type Call struct {
	Name       string         `json:"name"`
	Message    string         `json:"message"`
	Parameters map[string]any `json:"parameters"`
}

// Result is the outward-facing outcome of handling one message.
type Result struct {
	// Content is the first present response text (dialogue reply, or the
	// action's own message when the dialogue was suppressed).
	Content string `json:"content"`
	// Calls lists every response carrying both an action name and action data.
	Calls []Call `json:"calls"`
}

// Error is the explicit failure value for resolution misses and generation
// failures. Status carries an HTTP-analog code (404 for not-found misses,
// 500 for generation failures) so callers can branch without string matching.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string { return fmt.Sprintf("%d: %s", e.Status, e.Message) }

// HTTP-analog status codes used by pipeline errors.
const (
	StatusNotFound         = 404
	StatusGenerationFailed = 500
)

const messageTemplate = `# About {{.agentName}}
{{.bio}}
{{.lore}}

# Style
{{.style}}
{{.providersBlock}}
# Participants
{{.actors}}

# Recent conversation
{{.recentMessages}}
{{.actionsBlock}}
` + action.RecentMessageInstruction + `

{{.senderName}}: {{.message}}

Reply as {{.agentName}} with a single JSON object of the form
{"text": "<your reply>", "action": "<name of one available action, or omit the field>"}.`

// Options configures a Pipeline.
type Options struct {
	// ModelClass selects the backend capability tier for dialogue and action
	// generation.
	ModelClass core.ModelClass
	// Collector, when set, additionally receives every structured message an
	// action handler produces.
	Collector core.Collector
	// Logger receives pipeline logs.
	Logger logging.Logger
}

// Pipeline handles messages against the conversation manager's room bindings.
type Pipeline struct {
	manager *conversation.Manager
	opts    Options
}

// New constructs a Pipeline with optional overrides.
func New(manager *conversation.Manager, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		ModelClass: core.ModelClassSmall,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{manager: manager, opts: opts}
}

// Handle runs the full cycle for one inbound message. Resolution misses and
// generation failures are returned as *Error values; they are terminal for
// this message, with no partial application of later steps.
func (p *Pipeline) Handle(ctx context.Context, conv *conversation.Conversation, text, userID string, facts []core.Fact) (*Result, error) {
	binding, ok := p.manager.RoomBinding(conv.Secret)
	if !ok {
		return nil, &Error{Status: StatusNotFound, Message: "room not found"}
	}

	senderName := ""
	for _, u := range binding.Users {
		if u.ID == userID {
			senderName = u.Name
			break
		}
	}
	if senderName == "" {
		return nil, &Error{Status: StatusNotFound, Message: fmt.Sprintf("user %s not found in conversation", userID)}
	}

	rt := binding.Runtime
	memories := rt.Memories()
	p.opts.Logger.Debug("handling message", "conversation_id", conv.ID, "sender", senderName, "agent", rt.AgentName())

	inbound := core.NewMemory(rt.AgentID(), userID, conv.Secret, core.Content{Text: text, Source: "direct"})
	if err := memories.AddEmbeddingToMemory(&inbound); err != nil {
		return nil, fmt.Errorf("embed inbound message: %w", err)
	}
	if err := memories.CreateMemory(inbound); err != nil {
		return nil, fmt.Errorf("record inbound message: %w", err)
	}

	overlay := core.Overlay{Facts: facts, SenderName: senderName}
	actions := installActions(binding.Character.Definition, rt.Model(), p.opts.ModelClass)

	state, err := rt.ComposeState(ctx, inbound, overlay)
	if err != nil {
		return nil, fmt.Errorf("compose state: %w", err)
	}

	prompt, err := p.renderPrompt(state, actions)
	if err != nil {
		return nil, fmt.Errorf("render dialogue prompt: %w", err)
	}

	start := time.Now()
	msg, err := model.GenerateMessageResponse(ctx, rt.Model(), prompt, p.opts.ModelClass)
	p.logModelCall(rt.Model(), time.Since(start), err == nil && msg != nil, err)
	if err != nil {
		return nil, &Error{Status: StatusGenerationFailed, Message: err.Error()}
	}
	if msg == nil {
		p.opts.Logger.Warn("generation produced no usable response", "conversation_id", conv.ID)
		return nil, &Error{Status: StatusGenerationFailed, Message: "no response from generative backend"}
	}

	response := core.NewMemory(rt.AgentID(), rt.AgentID(), conv.Secret, core.Content{Text: msg.Text, Action: msg.Action})
	if err := memories.AddEmbeddingToMemory(&response); err != nil {
		return nil, fmt.Errorf("embed response: %w", err)
	}
	if err := memories.CreateMemory(response); err != nil {
		return nil, fmt.Errorf("record response: %w", err)
	}

	if state, err = rt.UpdateRecentMessageState(ctx, state); err != nil {
		return nil, fmt.Errorf("refresh recent messages: %w", err)
	}

	var collected []core.Content
	collect := func(c core.Content) {
		collected = append(collected, c)
		if p.opts.Collector != nil {
			p.opts.Collector(c)
		}
	}
	if err := rt.ProcessActions(ctx, inbound, []core.Memory{response}, state, actions, collect); err != nil {
		return nil, fmt.Errorf("process actions: %w", err)
	}

	if err := rt.Evaluate(ctx, inbound, state); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	return assembleResult(msg, actions, collected), nil
}

// logModelCall reports dialogue-generation latency when the configured
// logger carries the model-call capability.
func (p *Pipeline) logModelCall(c core.Completer, dur time.Duration, success bool, err error) {
	ml, ok := p.opts.Logger.(logging.ModelCallLogger)
	if !ok {
		return
	}
	name := "unknown"
	if m, ok := c.(model.Model); ok {
		name = m.Info().Name
	}
	ml.LogModelCall(name, dur, success, err)
}

// renderPrompt renders the dialogue template, folding in provider context
// and the available action list.
func (p *Pipeline) renderPrompt(state *core.State, actions []core.InstalledAction) (string, error) {
	values := state.Values()

	providersBlock := ""
	if providers, _ := values["providers"].(string); providers != "" {
		providersBlock = "\n# Context\n" + providers + "\n"
	}
	values["providersBlock"] = providersBlock

	actionsBlock := ""
	if len(actions) > 0 {
		lines := make([]string, len(actions))
		for i, a := range actions {
			lines[i] = fmt.Sprintf("- %s: %s", a.Name, a.Description)
		}
		actionsBlock = "\n# Available actions\n" + strings.Join(lines, "\n") + "\n"
	}
	values["actionsBlock"] = actionsBlock

	return util.RenderTemplate(messageTemplate, values)
}

// installActions wraps the character's declared actions as per-call
// dispatchable actions. Installation is threaded through the call rather
// than mutating runtime state, so concurrent messages never observe each
// other's action sets.
func installActions(def character.Definition, completer core.Completer, class core.ModelClass) []core.InstalledAction {
	if len(def.Actions) == 0 {
		return nil
	}
	out := make([]core.InstalledAction, len(def.Actions))
	for i, act := range def.Actions {
		out[i] = action.Install(act, completer, class)
	}
	return out
}

// assembleResult applies initial-message suppression and flattens collected
// responses into the outward result.
func assembleResult(msg *model.Message, actions []core.InstalledAction, collected []core.Content) *Result {
	suppressed := false
	if msg.Action != "" {
		for _, a := range actions {
			if strings.EqualFold(a.Name, msg.Action) && a.SuppressInitialMessage {
				suppressed = true
				break
			}
		}
	}

	responses := make([]core.Content, 0, len(collected)+1)
	if !suppressed {
		responses = append(responses, core.Content{Text: msg.Text, Action: msg.Action})
	}
	responses = append(responses, collected...)

	result := &Result{}
	for _, r := range responses {
		if result.Content == "" && r.Text != "" {
			result.Content = r.Text
		}
		if r.Action != "" && r.Data != nil {
			result.Calls = append(result.Calls, Call{Name: r.Action, Message: r.Text, Parameters: r.Data})
		}
	}
	return result
}
