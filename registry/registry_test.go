package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/model"
	"github.com/hupe1980/personamesh/runtime"
	"github.com/hupe1980/personamesh/storage"
)

func testDefinition(name string) character.Definition {
	return character.Definition{
		Name:       name,
		Bio:        []string{name + " is a concierge."},
		Lore:       []string{"Well traveled."},
		Knowledge:  []string{"routes"},
		Topics:     []string{"travel"},
		Adjectives: []string{"cheerful"},
		Style:      character.Style{Chat: []string{"Keep it short."}},
	}
}

func newTestRegistry() *Registry {
	return New(func(o *Options) {
		o.Model = model.NewMockModel()
		o.Store = storage.NewInMemoryStore()
	})
}

func TestRegistry_GetOrCreateDeduplicates(t *testing.T) {
	r := newTestRegistry()

	ch1 := r.GetOrCreate(testDefinition("Ava"))
	ch2 := r.GetOrCreate(testDefinition("Ava"))
	assert.Equal(t, ch1.Hash, ch2.Hash)

	rt1, ok := r.Binding(ch1.Hash)
	require.True(t, ok)
	rt2, ok := r.Binding(ch2.Hash)
	require.True(t, ok)
	assert.Same(t, rt1.(*runtime.AgentRuntime), rt2.(*runtime.AgentRuntime))
}

func TestRegistry_GetOrCreateDistinctDefinitions(t *testing.T) {
	r := newTestRegistry()

	ch1 := r.GetOrCreate(testDefinition("Ava"))
	ch2 := r.GetOrCreate(testDefinition("Eve"))
	assert.NotEqual(t, ch1.Hash, ch2.Hash)

	rt1, _ := r.Binding(ch1.Hash)
	rt2, _ := r.Binding(ch2.Hash)
	assert.NotSame(t, rt1.(*runtime.AgentRuntime), rt2.(*runtime.AgentRuntime))
}

func TestRegistry_LoadUnregistered(t *testing.T) {
	r := newTestRegistry()

	ch := character.New(testDefinition("Ava"))
	err := r.Load(context.Background(), ch)
	require.Error(t, err)

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "Ava", nfErr.Name)
	assert.Equal(t, ch.Hash, nfErr.Hash)
}

func TestRegistry_Load(t *testing.T) {
	r := newTestRegistry()

	ch := r.GetOrCreate(testDefinition("Ava"))
	require.NoError(t, r.Load(context.Background(), ch))

	assert.True(t, r.Contains(ch))
	loaded := r.Loaded()
	require.Len(t, loaded, 1)
	assert.Equal(t, ch.Hash, loaded[0].Hash)
}

func TestRegistry_Validate(t *testing.T) {
	r := newTestRegistry()

	assert.NoError(t, r.Validate(testDefinition("Ava")))

	bad := testDefinition("Ava")
	bad.Bio = nil
	assert.Error(t, r.Validate(bad))
}

func TestRegistry_StopAll(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	ch1 := r.GetOrCreate(testDefinition("Ava"))
	ch2 := r.GetOrCreate(testDefinition("Eve"))
	require.NoError(t, r.Load(ctx, ch1))
	require.NoError(t, r.Load(ctx, ch2))

	require.NoError(t, r.StopAll(ctx))
	for _, ch := range []character.Character{ch1, ch2} {
		rt, ok := r.Binding(ch.Hash)
		require.True(t, ok)
		assert.True(t, rt.(*runtime.AgentRuntime).Stopped())
	}

	// Stopping is idempotent.
	assert.NoError(t, r.StopAll(ctx))
}
