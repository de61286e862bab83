package core

import "context"

// Store is the persistent storage adapter for rooms and participants. The
// secret room token doubles as the storage room id; GetRoom additionally
// resolves caller-supplied persistence tokens. Implementations must be safe
// for concurrent use.
type Store interface {
	// Init prepares the adapter (connections, migrations). Idempotent.
	Init(ctx context.Context) error

	// CreateRoom allocates a room, optionally correlated with an opaque
	// caller-supplied persistence token, and returns its secret token.
	CreateRoom(ctx context.Context, persistenceToken string) (string, error)

	// RemoveRoom releases a room; its tokens become unresolvable.
	RemoveRoom(ctx context.Context, secretToken string) error

	// GetRoom resolves a secret or persistence token to the room id. The
	// second return is false when no such room exists.
	GetRoom(ctx context.Context, token string) (string, bool, error)

	// AddParticipant records a user's membership in a room.
	AddParticipant(ctx context.Context, userID, roomID string) error

	// RemoveParticipant drops a user's membership in a room.
	RemoveParticipant(ctx context.Context, userID, roomID string) error

	// ParticipantsForRoom returns the authoritative participant id set.
	ParticipantsForRoom(ctx context.Context, roomID string) ([]string, error)
}

// Embedder derives a vector representation of text for memory storage.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CacheStore is a namespaced key/value cache facility. Runtimes receive a
// cache keyed by their character hash so distinct characters never share
// cached values.
type CacheStore interface {
	Get(ctx context.Context, namespace, key string) (any, bool, error)
	Set(ctx context.Context, namespace, key string, value any) error
	Delete(ctx context.Context, namespace, key string) error
}
