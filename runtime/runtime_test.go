package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/personamesh/cache"
	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/logging"
	"github.com/hupe1980/personamesh/model"
	"github.com/hupe1980/personamesh/storage"
)

func testCharacter(t *testing.T) character.Character {
	t.Helper()
	def := character.Definition{
		Name:       "Ava",
		Bio:        []string{"Ava is a travel concierge."},
		Lore:       []string{"line one", "line two", "line three", "line four"},
		Knowledge:  []string{"routes"},
		Topics:     []string{"travel"},
		Adjectives: []string{"cheerful"},
		Style:      character.Style{All: []string{"Be warm."}, Chat: []string{"Keep it short."}},
	}
	return character.New(def)
}

func newTestRuntime(t *testing.T) *AgentRuntime {
	t.Helper()
	return New(Config{
		Character: testCharacter(t),
		Model:     model.NewMockModel(),
		Store:     storage.NewInMemoryStore(),
		Cache:     cache.NewInMemoryStore(),
		Embedder:  cache.NewHashEmbedder(),
	})
}

// countingStore counts Init calls on top of the in-memory store.
type countingStore struct {
	*storage.InMemoryStore
	inits int
}

func (s *countingStore) Init(ctx context.Context) error {
	s.inits++
	return s.InMemoryStore.Init(ctx)
}

func TestAgentRuntime_InitializeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{InMemoryStore: storage.NewInMemoryStore()}
	rt := New(Config{Character: testCharacter(t), Model: model.NewMockModel(), Store: store})

	require.NoError(t, rt.Initialize(ctx))
	require.NoError(t, rt.Initialize(ctx))
	assert.Equal(t, 1, store.inits)
}

func TestAgentRuntime_StopIdempotent(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	assert.False(t, rt.Stopped())
	require.NoError(t, rt.Stop(ctx))
	require.NoError(t, rt.Stop(ctx))
	assert.True(t, rt.Stopped())
}

func TestAgentRuntime_ComposeState(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	require.NoError(t, rt.EnsureConnection(ctx, "u1", "room-1", "bob", "Bob", "direct"))

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hello"})
	s, err := rt.ComposeState(ctx, msg, core.Overlay{SenderName: "Bob"})
	require.NoError(t, err)

	assert.Equal(t, "Ava", s.AgentName)
	assert.Equal(t, "Bob", s.SenderName)
	assert.Equal(t, "hello", s.MessageText)
	assert.Equal(t, "Ava is a travel concierge.", s.Bio)
	assert.Equal(t, "line one\nline two\nline three", s.Lore) // bounded lore window
	assert.Equal(t, "Be warm.\nKeep it short.", s.Style)

	// Actors: the agent itself plus the connected user, screen name preferred.
	require.Len(t, s.Actors, 2)
	names := []string{s.Actors[0].Name, s.Actors[1].Name}
	assert.ElementsMatch(t, []string{"Ava", "Bob"}, names)
}

func TestAgentRuntime_ComposeStateOverlay(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	provider := core.ProviderFunc(func(_ context.Context, _ core.Memory, _ *core.State) (string, error) {
		return "The sun is shining.", nil
	})
	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})

	s, err := rt.ComposeState(ctx, msg, core.Overlay{
		Providers: []core.Provider{provider},
		Facts:     []core.Fact{{Key: "weather", Value: "sunny"}, {Key: "city", Value: "Lisbon"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "weather=sunny, city=Lisbon\nThe sun is shining.", s.Providers)
}

func TestAgentRuntime_ComposeStateProviderError(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	failing := core.ProviderFunc(func(_ context.Context, _ core.Memory, _ *core.State) (string, error) {
		return "", errors.New("boom")
	})
	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})

	_, err := rt.ComposeState(ctx, msg, core.Overlay{Providers: []core.Provider{failing}})
	assert.Error(t, err)
}

func TestAgentRuntime_UpdateRecentMessageState(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "first"})
	s, err := rt.ComposeState(ctx, msg, core.Overlay{})
	require.NoError(t, err)
	assert.Empty(t, s.RecentMessages)

	require.NoError(t, rt.Memories().CreateMemory(msg))
	reply := core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Text: "second"})
	require.NoError(t, rt.Memories().CreateMemory(reply))

	s, err = rt.UpdateRecentMessageState(ctx, s)
	require.NoError(t, err)
	require.Len(t, s.RecentMessages, 2)
	assert.Equal(t, "first", s.RecentMessages[0].Content.Text)
	assert.Equal(t, "second", s.RecentMessages[1].Content.Text)
}

func installedAction(name string, similes []string, collectCount *int) core.InstalledAction {
	return core.InstalledAction{
		Name:    name,
		Similes: similes,
		Handler: func(_ context.Context, _ core.Memory, _ *core.State, collect core.Collector) error {
			*collectCount++
			collect(core.Content{Text: "done", Action: name})
			return nil
		},
	}
}

func TestAgentRuntime_ProcessActionsByName(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	var calls int
	actions := []core.InstalledAction{installedAction("setMood", []string{"CHANGE_MOOD"}, &calls)}

	var collected []core.Content
	collect := func(c core.Content) { collected = append(collected, c) }

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "set the mood"})
	responses := []core.Memory{core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Text: "ok", Action: "setmood"})}

	require.NoError(t, rt.ProcessActions(ctx, msg, responses, &core.State{}, actions, collect))
	assert.Equal(t, 1, calls)
	require.Len(t, collected, 1)
	assert.Equal(t, "setMood", collected[0].Action)
}

func TestAgentRuntime_ProcessActionsBySimile(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	var calls int
	actions := []core.InstalledAction{installedAction("setMood", []string{"CHANGE_MOOD"}, &calls)}

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})
	responses := []core.Memory{core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Action: "change_mood"})}

	require.NoError(t, rt.ProcessActions(ctx, msg, responses, &core.State{}, actions, func(core.Content) {}))
	assert.Equal(t, 1, calls)
}

func TestAgentRuntime_ProcessActionsRunsAtMostOne(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	var first, second int
	actions := []core.InstalledAction{
		installedAction("first", nil, &first),
		installedAction("second", nil, &second),
	}

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})
	responses := []core.Memory{
		core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Action: "first"}),
		core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Action: "second"}),
	}

	require.NoError(t, rt.ProcessActions(ctx, msg, responses, &core.State{}, actions, func(core.Content) {}))
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestAgentRuntime_ProcessActionsUnknownSkipped(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})
	responses := []core.Memory{core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Action: "unknown"})}

	assert.NoError(t, rt.ProcessActions(ctx, msg, responses, &core.State{}, nil, func(core.Content) {}))
}

func TestAgentRuntime_ProcessActionsValidateGates(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	var calls int
	act := installedAction("guarded", nil, &calls)
	act.Validate = func(_ context.Context, _ core.Memory, _ *core.State) (bool, error) { return false, nil }

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})
	responses := []core.Memory{core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Action: "guarded"})}

	require.NoError(t, rt.ProcessActions(ctx, msg, responses, &core.State{}, []core.InstalledAction{act}, func(core.Content) {}))
	assert.Equal(t, 0, calls)
}

type failingEvaluator struct{}

func (failingEvaluator) Name() string { return "failing" }
func (failingEvaluator) Evaluate(context.Context, core.Memory, *core.State) error {
	return errors.New("always fails")
}

func TestAgentRuntime_EvaluateSwallowsEvaluatorErrors(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	rt.RegisterEvaluator(failingEvaluator{})

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "hi"})
	assert.NoError(t, rt.Evaluate(ctx, msg, &core.State{}))
}

func TestMemoryManager_RecentWindow(t *testing.T) {
	m := newMemoryManager(nil, nil, "ns")
	for i := 0; i < 5; i++ {
		mem := core.NewMemory("a", "u", "room", core.Content{Text: fmt.Sprintf("msg %d", i)})
		require.NoError(t, m.CreateMemory(mem))
	}

	recent, err := m.RecentMemories("room", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg 2", recent[0].Content.Text)
	assert.Equal(t, "msg 4", recent[2].Content.Text)

	recent, err = m.RecentMemories("other", 3)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

type countingEmbedder struct {
	inner core.Embedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.inner.Embed(ctx, text)
}

func TestMemoryManager_EmbeddingCached(t *testing.T) {
	embedder := &countingEmbedder{inner: cache.NewHashEmbedder()}
	m := newMemoryManager(embedder, cache.NewInMemoryStore(), "hash-ns")

	m1 := core.NewMemory("a", "u", "room", core.Content{Text: "same text"})
	require.NoError(t, m.AddEmbeddingToMemory(&m1))
	require.NotEmpty(t, m1.Embedding)

	m2 := core.NewMemory("a", "u", "room", core.Content{Text: "same text"})
	require.NoError(t, m.AddEmbeddingToMemory(&m2))
	assert.Equal(t, m1.Embedding, m2.Embedding)
	assert.Equal(t, 1, embedder.calls)

	// Empty text never gets an embedding.
	m3 := core.NewMemory("a", "u", "room", core.Content{})
	require.NoError(t, m.AddEmbeddingToMemory(&m3))
	assert.Empty(t, m3.Embedding)
}

func TestAgentRuntime_ProcessActionsLogsOutcome(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text", Output: &buf})
	rt := New(Config{
		Character: testCharacter(t),
		Model:     model.NewMockModel(),
		Store:     storage.NewInMemoryStore(),
		Cache:     cache.NewInMemoryStore(),
		Embedder:  cache.NewHashEmbedder(),
		Logger:    logger,
	})

	var calls int
	actions := []core.InstalledAction{installedAction("setMood", nil, &calls)}

	msg := core.NewMemory(rt.AgentID(), "u1", "room-1", core.Content{Text: "set the mood"})
	responses := []core.Memory{core.NewMemory(rt.AgentID(), rt.AgentID(), "room-1", core.Content{Text: "ok", Action: "setMood"})}

	require.NoError(t, rt.ProcessActions(ctx, msg, responses, &core.State{}, actions, func(core.Content) {}))
	require.Equal(t, 1, calls)

	out := buf.String()
	assert.Contains(t, out, "Action execution completed")
	assert.Contains(t, out, "action_name=setMood")
}
