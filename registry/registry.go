// Package registry deduplicates character definitions by content hash and
// owns the backing agent runtime for each distinct character: exactly one
// runtime exists per hash, created lazily on first GetOrCreate and stopped
// via StopAll or when a conversation reassignment abandons it.
package registry

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/logging"
	"github.com/hupe1980/personamesh/runtime"
)

// NotFoundError indicates a character was referenced before being registered
// through GetOrCreate.
type NotFoundError struct {
	Name string
	Hash string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("character %q (hash %s) is not registered", e.Name, e.Hash)
}

// Options holds the collaborators every created runtime is wired with.
type Options struct {
	// Model is the generative backend attached to new runtimes.
	Model core.Completer
	// Store is the persistent room/participant adapter.
	Store core.Store
	// Cache is the cache facility; each runtime uses its character hash as
	// namespace.
	Cache core.CacheStore
	// Embedder derives memory embeddings.
	Embedder core.Embedder
	// Logger receives registry and runtime logs.
	Logger logging.Logger
}

// Registry maps character hashes to their single backing runtime. All
// methods are safe for concurrent use.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	bindings map[string]core.Runtime
	loaded   []character.Character
}

// New constructs a Registry with optional overrides.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		opts:     opts,
		bindings: make(map[string]core.Runtime),
	}
}

// Validate structurally checks a character definition; see character.Validate.
func (r *Registry) Validate(def character.Definition) error {
	return character.Validate(def)
}

// GetOrCreate computes the definition's hash and returns a character handle.
// When a runtime already exists for the hash the handle wraps the same
// definition without creating a new runtime; otherwise a runtime is
// constructed (flattened style, attached model, cache keyed by the hash) and
// registered under the hash. Idempotent: two calls with
// field-for-field identical definitions never create two runtimes.
func (r *Registry) GetOrCreate(def character.Definition) character.Character {
	ch := character.New(def)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[ch.Hash]; exists {
		return ch
	}

	rt := runtime.New(runtime.Config{
		Character: ch,
		Model:     r.opts.Model,
		Store:     r.opts.Store,
		Cache:     r.opts.Cache,
		Embedder:  r.opts.Embedder,
		Logger:    r.opts.Logger,
	})
	r.bindings[ch.Hash] = rt
	r.opts.Logger.Debug("runtime registered", "character", def.Name, "hash", ch.Hash)
	return ch
}

// Load initializes the runtime backing the character and appends the
// character to the loaded list. It fails with *NotFoundError when GetOrCreate
// has not run for this character.
func (r *Registry) Load(ctx context.Context, ch character.Character) error {
	r.mu.RLock()
	rt, ok := r.bindings[ch.Hash]
	r.mu.RUnlock()
	if !ok {
		return &NotFoundError{Name: ch.Definition.Name, Hash: ch.Hash}
	}

	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("load character %q: %w", ch.Definition.Name, err)
	}

	r.mu.Lock()
	r.loaded = append(r.loaded, ch)
	r.mu.Unlock()
	return nil
}

// Contains reports whether a runtime exists for the character's hash.
func (r *Registry) Contains(ch character.Character) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bindings[ch.Hash]
	return ok
}

// Binding returns the runtime registered for the hash, if any.
func (r *Registry) Binding(hash string) (core.Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.bindings[hash]
	return rt, ok
}

// Loaded returns a copy of the loaded-character list.
func (r *Registry) Loaded() []character.Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]character.Character, len(r.loaded))
	copy(out, r.loaded)
	return out
}

// StopAll stops every registered runtime concurrently. Stopping is
// idempotent per runtime, so repeated calls are safe.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	runtimes := make([]core.Runtime, 0, len(r.bindings))
	for _, rt := range r.bindings {
		runtimes = append(runtimes, rt)
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, rt := range runtimes {
		g.Go(func() error {
			return rt.Stop(ctx)
		})
	}
	return g.Wait()
}
