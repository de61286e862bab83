package core

import (
	"time"

	"github.com/google/uuid"
)

// Content is the payload of a single conversational memory. Text carries the
// natural-language body; Action optionally names a dispatchable action the
// author selected; Data optionally carries structured output produced by an
// action handler.
type Content struct {
	Text   string         `json:"text"`
	Action string         `json:"action,omitempty"`
	Source string         `json:"source,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Memory is one entry in a room's conversational history. After creation it
// should be treated as immutable; the embedding is attached once by the
// memory manager before persistence.
type Memory struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Content   Content   `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMemory constructs a memory with a fresh id and UTC timestamp.
func NewMemory(agentID, userID, roomID string, content Content) Memory {
	return Memory{
		ID:        NewID(),
		AgentID:   agentID,
		UserID:    userID,
		RoomID:    roomID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// MemoryManager persists room-scoped memories and attaches embeddings.
// Implementations must be safe for concurrent use.
type MemoryManager interface {
	// AddEmbeddingToMemory derives and attaches an embedding for the memory's
	// text in place. Memories with empty text receive no embedding.
	AddEmbeddingToMemory(m *Memory) error

	// CreateMemory persists the memory in its room's history.
	CreateMemory(m Memory) error

	// RecentMemories returns up to count memories for the room, most recent
	// last (chronological order).
	RecentMemories(roomID string, count int) ([]Memory, error)
}

// NewID generates a unique identifier used for memories, rooms and agents.
func NewID() string { return uuid.NewString() }
