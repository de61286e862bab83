// Package personamesh provides a high-level façade over the character
// registry, conversation manager and message pipeline, enabling rapid
// construction of multi-character conversational systems. Most applications
// interact with this package by:
//  1. Creating a Framework via New() (optionally overriding default in-memory services)
//  2. Starting it once per process (Start)
//  3. Registering one or more characters (RegisterCharacter)
//  4. Creating conversations and sending messages (CreateConversation, Message)
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable storage adapter, a real model
// backend and a structured logger.
package personamesh

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/personamesh/cache"
	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/conversation"
	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/logging"
	"github.com/hupe1980/personamesh/model"
	"github.com/hupe1980/personamesh/model/openai"
	"github.com/hupe1980/personamesh/pipeline"
	"github.com/hupe1980/personamesh/registry"
	"github.com/hupe1980/personamesh/storage"
)

// ErrAlreadyInitialized indicates Start was called twice on the same
// Framework. The backing runtime layer shares per-instance resources, so a
// Framework may be started at most once; construct and pass one instance by
// reference instead of starting a second.
var ErrAlreadyInitialized = errors.New("personamesh: framework already started")

// Options configures the Framework instance.
type Options struct {
	// Model is the generative backend attached to every character runtime.
	// Unset, the framework constructs a default: the OpenAI backend when Token
	// is supplied, the deterministic mock otherwise.
	Model model.Model
	// Token is the API key used to construct the default OpenAI backend. It
	// is ignored when Model is supplied, since explicit backends carry their
	// own credentials.
	Token string
	// Store is the persistent room/participant adapter (defaults to in-memory).
	Store core.Store
	// Cache is the cache facility keyed per character hash (defaults to in-memory).
	Cache core.CacheStore
	// Embedder derives memory embeddings (defaults to the local hash embedder).
	Embedder core.Embedder
	// ModelClass selects the backend capability tier for message handling.
	ModelClass core.ModelClass
	// Collector, when set, receives every structured action message.
	Collector core.Collector
	// RetainFinished keeps finished conversations' in-memory entries.
	RetainFinished bool
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Framework is the lifecycle-managed root object aggregating the registry,
// conversation manager and message pipeline. Construct one per process and
// pass it by reference to all dependents.
type Framework struct {
	opts          Options
	registry      *registry.Registry
	conversations *conversation.Manager
	pipeline      *pipeline.Pipeline

	mu      sync.Mutex
	started bool
}

// New creates a Framework with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Framework {
	opts := Options{
		Cache:      cache.NewInMemoryStore(),
		Embedder:   cache.NewHashEmbedder(),
		ModelClass: core.ModelClassSmall,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = storage.NewInMemoryStore()
	}
	if opts.Model == nil {
		if opts.Token != "" {
			opts.Model = openai.NewModel(func(o *openai.Options) { o.APIKey = opts.Token })
		} else {
			opts.Model = model.NewMockModel()
		}
	}

	reg := registry.New(func(o *registry.Options) {
		o.Model = opts.Model
		o.Store = opts.Store
		o.Cache = opts.Cache
		o.Embedder = opts.Embedder
		o.Logger = opts.Logger
	})
	conversations := conversation.NewManager(opts.Store, reg, func(o *conversation.Options) {
		o.RetainFinished = opts.RetainFinished
		o.Logger = opts.Logger
	})
	pipe := pipeline.New(conversations, func(o *pipeline.Options) {
		o.ModelClass = opts.ModelClass
		o.Collector = opts.Collector
		o.Logger = opts.Logger
	})

	return &Framework{
		opts:          opts,
		registry:      reg,
		conversations: conversations,
		pipeline:      pipe,
	}
}

// Start initializes the framework's storage adapter. A second call on the
// same instance fails with ErrAlreadyInitialized.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return ErrAlreadyInitialized
	}
	if err := f.opts.Store.Init(ctx); err != nil {
		return err
	}
	f.started = true
	f.opts.Logger.Info("personamesh started")
	return nil
}

// Stop stops every character runtime. Idempotent per runtime.
func (f *Framework) Stop(ctx context.Context) error {
	return f.registry.StopAll(ctx)
}

// Registry exposes the character registry.
func (f *Framework) Registry() *registry.Registry { return f.registry }

// Conversations exposes the conversation manager.
func (f *Framework) Conversations() *conversation.Manager { return f.conversations }

// RegisterCharacter validates the definition, registers (or reuses) its
// runtime, and loads it.
func (f *Framework) RegisterCharacter(ctx context.Context, def character.Definition) (character.Character, error) {
	if err := f.registry.Validate(def); err != nil {
		return character.Character{}, err
	}
	ch := f.registry.GetOrCreate(def)
	if err := f.registry.Load(ctx, ch); err != nil {
		return character.Character{}, err
	}
	return ch, nil
}

// CreateConversation allocates a conversation bound to the character's
// runtime. Returns nil (and no error) when the character was never
// registered; callers must check.
func (f *Framework) CreateConversation(ctx context.Context, ch character.Character, users []conversation.User, persistenceToken string) (*conversation.Conversation, error) {
	return f.conversations.Create(ctx, ch, users, persistenceToken)
}

// Conversation resolves a conversation by exactly one selector.
func (f *Framework) Conversation(ctx context.Context, sel conversation.Selector) (*conversation.Conversation, error) {
	return f.conversations.GetBy(ctx, sel)
}

// SetConversationUsers reconciles the conversation's membership to users.
func (f *Framework) SetConversationUsers(ctx context.Context, conv *conversation.Conversation, users []conversation.User) error {
	return f.conversations.SetUsers(ctx, conv, users)
}

// SetConversationCharacter rebinds the conversation to another registered
// character, reclaiming the previous runtime when abandoned.
func (f *Framework) SetConversationCharacter(ctx context.Context, conv *conversation.Conversation, ch character.Character) error {
	return f.conversations.SetCharacter(ctx, conv, ch)
}

// FinishConversation releases the conversation's storage room; its
// identifiers become invalid.
func (f *Framework) FinishConversation(ctx context.Context, conv *conversation.Conversation) error {
	return f.conversations.Finish(ctx, conv)
}

// Message handles one inbound message through the pipeline.
func (f *Framework) Message(ctx context.Context, conv *conversation.Conversation, text, userID string, facts []core.Fact) (*pipeline.Result, error) {
	return f.pipeline.Handle(ctx, conv, text, userID, facts)
}
