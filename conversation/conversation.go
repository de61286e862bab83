// Package conversation tracks multi-party conversations against character
// runtimes. It owns the identity map between the externally-visible ordinal
// conversation id, the internal secret room token, and the optional
// caller-supplied persistence token, and it keeps each room's participant
// roster reconciled with the storage adapter.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/personamesh/character"
	"github.com/hupe1980/personamesh/core"
	"github.com/hupe1980/personamesh/logging"
)

// channelSource is the fixed channel kind under which direct conversation
// connections are established.
const channelSource = "direct"

// ErrUnknownCharacter indicates a character without a registered runtime was
// referenced.
var ErrUnknownCharacter = errors.New("character has no registered runtime")

// User identifies one human participant of a conversation. Users are
// externally owned; callers pass them per membership call.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conversation is a snapshot of one tracked conversation. Any one of ID,
// Secret or PersistenceToken is sufficient to retrieve it again via GetBy.
type Conversation struct {
	// ID is the externally-visible monotonically increasing ordinal.
	ID int64 `json:"id"`
	// Secret is the internal storage room token. Treat as confidential.
	Secret string `json:"secret"`
	// PersistenceToken is the optional caller-supplied correlation key.
	PersistenceToken string `json:"persistence_token,omitempty"`
	// Character is the currently bound character.
	Character character.Character `json:"-"`
	// Users is the current participant roster.
	Users []User `json:"users"`
}

// Selector picks a conversation by exactly one of its three identifiers.
type Selector struct {
	ID               *int64
	Secret           string
	PersistenceToken string
}

// roomBinding is the mutable heart of conversation state: the roster and
// current runtime bound to one secret token. The persistence token is carried
// here so retrieved conversations keep their correlation key.
type roomBinding struct {
	roster           []User
	runtime          core.Runtime
	character        character.Character
	persistenceToken string
}

// Binding is a read-only snapshot of a room binding handed to the message
// pipeline.
type Binding struct {
	Secret           string
	PersistenceToken string
	Runtime          core.Runtime
	Character        character.Character
	Users            []User
}

// BindingSource resolves character hashes to live runtimes; satisfied by
// registry.Registry.
type BindingSource interface {
	Binding(hash string) (core.Runtime, bool)
}

// Options configures a Manager.
type Options struct {
	// RetainFinished keeps the in-memory identity map and room binding after
	// Finish. Default false: finished conversations are evicted, bounding
	// memory growth. Enable for audit-style retention; entries are then only
	// reachable through direct map inspection since the storage room is gone.
	RetainFinished bool
	// Logger receives manager logs.
	Logger logging.Logger
}

// Manager owns the conversation identity map and room bindings. All methods
// are safe for concurrent use.
type Manager struct {
	store  core.Store
	source BindingSource
	opts   Options

	mu         sync.RWMutex
	nextID     int64
	idToSecret map[int64]string
	secretToID map[string]int64
	rooms      map[string]*roomBinding
}

// NewManager constructs a Manager over the given storage adapter and runtime
// source.
func NewManager(store core.Store, source BindingSource, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		store:      store,
		source:     source,
		opts:       opts,
		idToSecret: make(map[int64]string),
		secretToID: make(map[string]int64),
		rooms:      make(map[string]*roomBinding),
	}
}

// Create allocates a new conversation bound to the character's runtime and
// reconciles membership to users. It returns nil (and no error) when the
// character has no registered runtime; callers must check for that.
func (m *Manager) Create(ctx context.Context, ch character.Character, users []User, persistenceToken string) (*Conversation, error) {
	rt, ok := m.source.Binding(ch.Hash)
	if !ok {
		return nil, nil
	}

	secret, err := m.store.CreateRoom(ctx, persistenceToken)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if err := m.store.AddParticipant(ctx, rt.AgentID(), secret); err != nil {
		return nil, fmt.Errorf("add agent participant: %w", err)
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.idToSecret[id] = secret
	m.secretToID[secret] = id
	m.rooms[secret] = &roomBinding{runtime: rt, character: ch, persistenceToken: persistenceToken}
	m.mu.Unlock()

	m.opts.Logger.Info("conversation created", "conversation_id", id, "character", ch.Definition.Name)

	conv := &Conversation{ID: id, Secret: secret, PersistenceToken: persistenceToken, Character: ch}
	if err := m.SetUsers(ctx, conv, users); err != nil {
		return nil, err
	}
	conv.Users = append([]User(nil), users...)
	return conv, nil
}

// GetBy resolves a conversation by exactly one selector. The same
// conversation is returned regardless of which selector is used. It returns
// nil (and no error) when the room no longer exists or no binding is tracked
// for it.
func (m *Manager) GetBy(ctx context.Context, sel Selector) (*Conversation, error) {
	token, err := m.selectorToken(sel)
	if err != nil {
		return nil, err
	}
	if token == "" {
		// An ordinal id that was never allocated (or was evicted).
		return nil, nil
	}

	roomID, ok, err := m.store.GetRoom(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve room: %w", err)
	}
	if !ok {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	binding, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	id, ok := m.secretToID[roomID]
	if !ok {
		return nil, nil
	}
	return &Conversation{
		ID:               id,
		Secret:           roomID,
		PersistenceToken: binding.persistenceToken,
		Character:        binding.character,
		Users:            append([]User(nil), binding.roster...),
	}, nil
}

// selectorToken validates that exactly one selector field is set and returns
// the storage token to resolve ("" when an ordinal id is unknown).
func (m *Manager) selectorToken(sel Selector) (string, error) {
	set := 0
	if sel.ID != nil {
		set++
	}
	if sel.Secret != "" {
		set++
	}
	if sel.PersistenceToken != "" {
		set++
	}
	if set != 1 {
		return "", fmt.Errorf("exactly one selector must be supplied, got %d", set)
	}

	if sel.ID != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.idToSecret[*sel.ID], nil
	}
	if sel.Secret != "" {
		return sel.Secret, nil
	}
	return sel.PersistenceToken, nil
}

// SetUsers replaces the room's roster with users and reconciles the storage
// adapter's participant list against it in two phases: participants absent
// from users are removed, then each user not yet a participant gets a
// runtime connection (fixed "direct" channel kind) and a participant entry.
// The adapter's participant set always converges to users' id set, whatever
// the starting state.
func (m *Manager) SetUsers(ctx context.Context, conv *Conversation, users []User) error {
	m.mu.Lock()
	binding, ok := m.rooms[conv.Secret]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("conversation %d: no room binding", conv.ID)
	}
	binding.roster = append([]User(nil), users...)
	rt := binding.runtime
	m.mu.Unlock()

	participants, err := m.store.ParticipantsForRoom(ctx, conv.Secret)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	desired := make(map[string]User, len(users))
	for _, u := range users {
		desired[u.ID] = u
	}
	existing := make(map[string]struct{}, len(participants))

	for _, id := range participants {
		existing[id] = struct{}{}
		if _, keep := desired[id]; !keep {
			if err := m.store.RemoveParticipant(ctx, id, conv.Secret); err != nil {
				return fmt.Errorf("remove participant %s: %w", id, err)
			}
		}
	}
	for _, u := range users {
		if _, present := existing[u.ID]; present {
			continue
		}
		if err := rt.EnsureConnection(ctx, u.ID, conv.Secret, u.Name, u.Name, channelSource); err != nil {
			return fmt.Errorf("ensure connection for %s: %w", u.ID, err)
		}
		if err := m.store.AddParticipant(ctx, u.ID, conv.Secret); err != nil {
			return fmt.Errorf("add participant %s: %w", u.ID, err)
		}
	}
	return nil
}

// SetCharacter repoints the conversation's room binding to the new
// character's runtime. The conversation's identifiers are unchanged. The
// previous runtime is stopped if and only if no other room binding still
// references it.
func (m *Manager) SetCharacter(ctx context.Context, conv *Conversation, ch character.Character) error {
	rt, ok := m.source.Binding(ch.Hash)
	if !ok {
		return fmt.Errorf("set character %q: %w", ch.Definition.Name, ErrUnknownCharacter)
	}

	m.mu.Lock()
	binding, ok := m.rooms[conv.Secret]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("conversation %d: no room binding", conv.ID)
	}
	current := binding.runtime
	inUseElsewhere := false
	for secret, other := range m.rooms {
		if secret != conv.Secret && other.runtime == current {
			inUseElsewhere = true
			break
		}
	}
	binding.runtime = rt
	binding.character = ch
	m.mu.Unlock()

	if current != rt && !inUseElsewhere {
		if err := current.Stop(ctx); err != nil {
			return fmt.Errorf("stop abandoned runtime: %w", err)
		}
	}

	conv.Character = ch
	m.opts.Logger.Info("conversation character changed", "conversation_id", conv.ID, "character", ch.Definition.Name)
	return nil
}

// Finish releases the conversation's storage room, after which none of its
// selectors resolve. In-memory entries are evicted unless the manager was
// configured with RetainFinished.
func (m *Manager) Finish(ctx context.Context, conv *Conversation) error {
	if err := m.store.RemoveRoom(ctx, conv.Secret); err != nil {
		return fmt.Errorf("remove room: %w", err)
	}

	if !m.opts.RetainFinished {
		m.mu.Lock()
		if id, ok := m.secretToID[conv.Secret]; ok {
			delete(m.idToSecret, id)
		}
		delete(m.secretToID, conv.Secret)
		delete(m.rooms, conv.Secret)
		m.mu.Unlock()
	}

	m.opts.Logger.Info("conversation finished", "conversation_id", conv.ID)
	return nil
}

// RoomBinding returns a snapshot of the room binding for the secret token,
// used by the message pipeline.
func (m *Manager) RoomBinding(secret string) (*Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	binding, ok := m.rooms[secret]
	if !ok {
		return nil, false
	}
	return &Binding{
		Secret:           secret,
		PersistenceToken: binding.persistenceToken,
		Runtime:          binding.runtime,
		Character:        binding.character,
		Users:            append([]User(nil), binding.roster...),
	}, true
}
