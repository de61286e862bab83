package core

import (
	"context"
	"fmt"
	"strings"
)

// Actor identifies one participant of a room for prompt construction.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// String renders the "Name (id)" form used in participant lists.
func (a Actor) String() string { return fmt.Sprintf("%s (%s)", a.Name, a.ID) }

// Fact is one caller-supplied contextual key/value pair attached to a single
// message, e.g. world-state facts the model should see.
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RenderFacts joins facts into the comma-separated key=value form providers
// expose to prompt templates.
func RenderFacts(facts []Fact) string {
	parts := make([]string, 0, len(facts))
	for _, f := range facts {
		parts = append(parts, f.Key+"="+f.Value)
	}
	return strings.Join(parts, ", ")
}

// State is the generation context composed for one message. It is rebuilt per
// call; mutating it never affects runtime-owned state.
type State struct {
	AgentID        string
	AgentName      string
	RoomID         string
	SenderName     string
	MessageText    string
	Actors         []Actor
	RecentMessages []Memory
	Providers      string // concatenated provider output
	Bio            string
	Lore           string
	Style          string
}

// Values flattens the state into the map consumed by prompt templates.
func (s *State) Values() map[string]any {
	actors := make([]string, len(s.Actors))
	for i, a := range s.Actors {
		actors[i] = a.String()
	}
	recent := make([]string, 0, len(s.RecentMessages))
	for _, m := range s.RecentMessages {
		name := m.UserID
		for _, a := range s.Actors {
			if a.ID == m.UserID {
				name = a.Name
				break
			}
		}
		recent = append(recent, name+": "+m.Content.Text)
	}
	return map[string]any{
		"agentName":      s.AgentName,
		"senderName":     s.SenderName,
		"message":        s.MessageText,
		"actors":         strings.Join(actors, ", "),
		"recentMessages": strings.Join(recent, "\n"),
		"providers":      s.Providers,
		"bio":            s.Bio,
		"lore":           s.Lore,
		"style":          s.Style,
	}
}

// Provider supplies dynamic context text during state composition.
type Provider interface {
	Provide(ctx context.Context, m Memory, s *State) (string, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, m Memory, s *State) (string, error)

// Provide implements Provider.
func (f ProviderFunc) Provide(ctx context.Context, m Memory, s *State) (string, error) {
	return f(ctx, m, s)
}
