package core

import "context"

// ModelClass selects the capability tier of the generative backend for a call.
type ModelClass string

const (
	ModelClassSmall  ModelClass = "small"
	ModelClassMedium ModelClass = "medium"
	ModelClassLarge  ModelClass = "large"
)

// Completer is the minimal generative-model surface runtimes expose to the
// message pipeline. Complete produces a free-form completion; CompleteObject
// produces a structured object conforming to the provided JSON-schema-like
// map, or nil when the backend returned nothing usable.
type Completer interface {
	Complete(ctx context.Context, prompt string, class ModelClass) (string, error)
	CompleteObject(ctx context.Context, prompt string, schema map[string]any, class ModelClass) (map[string]any, error)
}

// Collector receives structured messages produced by action handlers during
// action processing.
type Collector func(c Content)

// InstalledAction is one dispatchable action threaded through a single
// pipeline call. Per-call installation (instead of mutating a shared runtime
// action list) keeps concurrent messages against the same runtime from
// observing each other's action sets.
type InstalledAction struct {
	Name                   string
	Description            string
	Similes                []string
	SuppressInitialMessage bool

	// Validate gates dispatch for a given message; pipeline-installed actions
	// accept any state.
	Validate func(ctx context.Context, m Memory, s *State) (bool, error)

	// Handler produces the action's structured message, reporting through the
	// collector.
	Handler func(ctx context.Context, m Memory, s *State, collect Collector) error
}

// Overlay carries the per-call additions to state composition: extra context
// providers, fixed key/value facts, and the sending user's display name.
type Overlay struct {
	Providers  []Provider
	Facts      []Fact
	SenderName string
}

// Runtime is the live backing process for one distinct character. One runtime
// exists per character hash; conversations bind to it and the message
// pipeline drives it per inbound message.
type Runtime interface {
	// AgentID returns the runtime's stable agent identifier.
	AgentID() string

	// AgentName returns the bound character's display name.
	AgentName() string

	// CharacterHash returns the content hash of the bound character.
	CharacterHash() string

	// Initialize performs one-time setup (connections, caches). Idempotent.
	Initialize(ctx context.Context) error

	// Stop releases the runtime's resources. Idempotent.
	Stop(ctx context.Context) error

	// EnsureConnection registers a user's presence in a room under a channel
	// source (e.g. "direct").
	EnsureConnection(ctx context.Context, userID, roomID, userName, screenName, source string) error

	// ComposeState builds the generation state for a message, folding in the
	// overlay's providers and facts.
	ComposeState(ctx context.Context, m Memory, overlay Overlay) (*State, error)

	// UpdateRecentMessageState refreshes the state's recent-message window.
	UpdateRecentMessageState(ctx context.Context, s *State) (*State, error)

	// ProcessActions resolves the action selected by the response memories (by
	// name or simile), runs at most one matching handler, and reports its
	// structured message through the collector.
	ProcessActions(ctx context.Context, m Memory, responses []Memory, s *State, actions []InstalledAction, collect Collector) error

	// Evaluate runs post-response evaluators for their side effects.
	Evaluate(ctx context.Context, m Memory, s *State) error

	// Memories returns the runtime's memory manager.
	Memories() MemoryManager

	// Model returns the generative backend bound to this runtime.
	Model() Completer
}
