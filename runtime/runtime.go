// Package runtime provides the default core.Runtime implementation: the live
// backing state for one distinct character. A runtime owns its room-scoped
// conversational memories, tracks per-room user connections for actor
// rendering, composes generation state, and dispatches installed actions
// against model responses.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/logging"
)

// loreContextLines bounds how much lore is folded into a single prompt.
const loreContextLines = 3

// Config carries everything an AgentRuntime is constructed from: the
// character it embodies, the generative backend (which owns its own
// credentials), and the storage/cache/embedding collaborators.
type Config struct {
	Character character.Character
	Model     core.Completer
	Store     core.Store
	Cache     core.CacheStore
	Embedder  core.Embedder
	Logger    logging.Logger
}

// Evaluator is a post-response hook run for its side effects (memory
// extraction, scoring, moderation). Evaluate output is not consumed by the
// message pipeline.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, m core.Memory, s *core.State) error
}

// AgentRuntime is the default core.Runtime implementation. One instance
// exists per distinct character hash; it lives until explicitly stopped.
// All exported methods are safe for concurrent use.
type AgentRuntime struct {
	agentID    string
	ch         character.Character
	styleLines []string
	model      core.Completer
	store      core.Store
	cache      core.CacheStore
	logger     logging.Logger
	memories   *memoryManager

	mu          sync.RWMutex
	connections map[string]map[string]string // roomID -> userID -> display name
	evaluators  []Evaluator
	initialized bool
	stopped     bool
}

var _ core.Runtime = (*AgentRuntime)(nil)

// New constructs an AgentRuntime from the given config. The runtime is inert
// until Initialize is called.
func New(cfg Config) *AgentRuntime {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &AgentRuntime{
		agentID:     core.NewID(),
		ch:          cfg.Character,
		styleLines:  cfg.Character.Definition.Style.Flatten(),
		model:       cfg.Model,
		store:       cfg.Store,
		cache:       cfg.Cache,
		logger:      logger,
		memories:    newMemoryManager(cfg.Embedder, cfg.Cache, cfg.Character.Hash),
		connections: make(map[string]map[string]string),
	}
}

// AgentID implements core.Runtime.
func (r *AgentRuntime) AgentID() string { return r.agentID }

// AgentName implements core.Runtime.
func (r *AgentRuntime) AgentName() string { return r.ch.Definition.Name }

// CharacterHash implements core.Runtime.
func (r *AgentRuntime) CharacterHash() string { return r.ch.Hash }

// Character returns the character this runtime embodies.
func (r *AgentRuntime) Character() character.Character { return r.ch }

// Memories implements core.Runtime.
func (r *AgentRuntime) Memories() core.MemoryManager { return r.memories }

// Model implements core.Runtime.
func (r *AgentRuntime) Model() core.Completer { return r.model }

// RegisterEvaluator appends a post-response evaluator.
func (r *AgentRuntime) RegisterEvaluator(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators = append(r.evaluators, e)
}

// Initialize performs one-time setup. Subsequent calls are no-ops.
func (r *AgentRuntime) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if r.store != nil {
		if err := r.store.Init(ctx); err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
	}
	r.initialized = true
	r.logger.Info("runtime initialized", "agent", r.ch.Definition.Name, "agent_id", r.agentID)
	return nil
}

// Stop releases the runtime. Subsequent calls are no-ops.
func (r *AgentRuntime) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	r.logger.Info("runtime stopped", "agent", r.ch.Definition.Name, "agent_id", r.agentID)
	return nil
}

// Stopped reports whether Stop has been called.
func (r *AgentRuntime) Stopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopped
}

// EnsureConnection implements core.Runtime; records the user's presence in
// the room so actor lists render display names. Re-registering is a cheap
// overwrite.
func (r *AgentRuntime) EnsureConnection(_ context.Context, userID, roomID, userName, screenName, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, ok := r.connections[roomID]
	if !ok {
		users = make(map[string]string)
		r.connections[roomID] = users
	}
	name := screenName
	if name == "" {
		name = userName
	}
	users[userID] = name
	r.logger.Debug("connection ensured", "user_id", userID, "room_id", roomID, "source", source)
	return nil
}

// actorsForRoom renders the room's known participants plus the agent itself.
func (r *AgentRuntime) actorsForRoom(roomID string) []core.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actors := []core.Actor{{ID: r.agentID, Name: r.ch.Definition.Name}}
	for id, name := range r.connections[roomID] {
		actors = append(actors, core.Actor{ID: id, Name: name})
	}
	return actors
}

// ComposeState implements core.Runtime.
func (r *AgentRuntime) ComposeState(ctx context.Context, m core.Memory, overlay core.Overlay) (*core.State, error) {
	recent, err := r.memories.RecentMemories(m.RoomID, 32)
	if err != nil {
		return nil, fmt.Errorf("compose state: %w", err)
	}

	def := r.ch.Definition
	lore := def.Lore
	if len(lore) > loreContextLines {
		lore = lore[:loreContextLines]
	}

	s := &core.State{
		AgentID:        r.agentID,
		AgentName:      def.Name,
		RoomID:         m.RoomID,
		SenderName:     overlay.SenderName,
		MessageText:    m.Content.Text,
		Actors:         r.actorsForRoom(m.RoomID),
		RecentMessages: recent,
		Bio:            strings.Join(def.Bio, " "),
		Lore:           strings.Join(lore, "\n"),
		Style:          strings.Join(r.styleLines, "\n"),
	}

	parts := make([]string, 0, len(overlay.Providers)+1)
	if rendered := core.RenderFacts(overlay.Facts); rendered != "" {
		parts = append(parts, rendered)
	}
	for _, p := range overlay.Providers {
		text, err := p.Provide(ctx, m, s)
		if err != nil {
			return nil, fmt.Errorf("provider failed: %w", err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	s.Providers = strings.Join(parts, "\n")

	return s, nil
}

// UpdateRecentMessageState implements core.Runtime; refreshes the state's
// recent-message window after new memories were recorded.
func (r *AgentRuntime) UpdateRecentMessageState(_ context.Context, s *core.State) (*core.State, error) {
	recent, err := r.memories.RecentMemories(s.RoomID, 32)
	if err != nil {
		return nil, fmt.Errorf("update recent messages: %w", err)
	}
	s.RecentMessages = recent
	return s, nil
}

// ProcessActions implements core.Runtime. For each response memory naming an
// action it resolves the installed action by name or simile and runs at most
// one handler, reporting structured messages through the collector.
func (r *AgentRuntime) ProcessActions(ctx context.Context, m core.Memory, responses []core.Memory, s *core.State, actions []core.InstalledAction, collect core.Collector) error {
	for _, resp := range responses {
		if resp.Content.Action == "" {
			continue
		}
		act := resolveAction(resp.Content.Action, actions)
		if act == nil {
			r.logger.Warn("no installed action matches", "action", resp.Content.Action, "agent", r.ch.Definition.Name)
			continue
		}
		if act.Validate != nil {
			ok, err := act.Validate(ctx, m, s)
			if err != nil {
				return fmt.Errorf("action %s validate: %w", act.Name, err)
			}
			if !ok {
				continue
			}
		}
		if act.Handler == nil {
			continue
		}
		start := time.Now()
		err := act.Handler(ctx, m, s, collect)
		if al, ok := r.logger.(logging.ActionCallLogger); ok {
			al.LogActionCall(act.Name, time.Since(start), err == nil, err)
		}
		if err != nil {
			return fmt.Errorf("action %s handler: %w", act.Name, err)
		}
		// One action per message; the first resolvable response wins.
		return nil
	}
	return nil
}

// resolveAction matches an action name case-insensitively against installed
// action names and similes.
func resolveAction(name string, actions []core.InstalledAction) *core.InstalledAction {
	for i := range actions {
		if strings.EqualFold(actions[i].Name, name) {
			return &actions[i]
		}
	}
	for i := range actions {
		for _, simile := range actions[i].Similes {
			if strings.EqualFold(simile, name) {
				return &actions[i]
			}
		}
	}
	return nil
}

// Evaluate implements core.Runtime; runs registered evaluators for their
// side effects. Evaluator failures are logged, not propagated, so a broken
// evaluator never derails message handling.
func (r *AgentRuntime) Evaluate(ctx context.Context, m core.Memory, s *core.State) error {
	r.mu.RLock()
	evaluators := make([]Evaluator, len(r.evaluators))
	copy(evaluators, r.evaluators)
	r.mu.RUnlock()

	for _, e := range evaluators {
		if err := e.Evaluate(ctx, m, s); err != nil {
			r.logger.Warn("evaluator failed", "evaluator", e.Name(), "error", err.Error())
		}
	}
	return nil
}
