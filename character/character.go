// Package character defines durable character definitions: the personality
// payload callers register with the framework, its content-hash identity, and
// structural validation. Definitions are plain data; the live runtime backing
// a character is owned by the registry package.
package character

// ParameterType enumerates the value types an action parameter may declare.
type ParameterType string

const (
	ParameterTypeNumber  ParameterType = "number"
	ParameterTypeBoolean ParameterType = "boolean"
	ParameterTypeString  ParameterType = "string"
)

// Valid reports whether the type is one of the supported parameter types.
func (t ParameterType) Valid() bool {
	switch t {
	case ParameterTypeNumber, ParameterTypeBoolean, ParameterTypeString:
		return true
	}
	return false
}

// Parameter is one typed, named input of a declared action.
type Parameter struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Type        ParameterType `json:"type" yaml:"type"`
}

// ActionDefinition declares a model-invocable function on a character. The
// model selects actions by name or simile; example transcripts guide when the
// action applies.
type ActionDefinition struct {
	Name                   string             `json:"name" yaml:"name"`
	Description            string             `json:"description" yaml:"description"`
	Similes                []string           `json:"similes" yaml:"similes"`
	Examples               [][]ExampleMessage `json:"examples" yaml:"examples"`
	Parameters             []Parameter        `json:"parameters" yaml:"parameters"`
	SuppressInitialMessage bool               `json:"suppressInitialMessage,omitempty" yaml:"suppressInitialMessage,omitempty"`
}

// ExampleMessage is one turn of an example transcript.
type ExampleMessage struct {
	User string `json:"user" yaml:"user"`
	Text string `json:"text" yaml:"text"`
}

// Style holds the per-medium style instruction buckets of a definition.
type Style struct {
	All  []string `json:"all" yaml:"all"`
	Chat []string `json:"chat" yaml:"chat"`
	Post []string `json:"post" yaml:"post"`
}

// Flatten joins every style bucket into a single instruction list, the form
// runtime configurations consume.
func (s Style) Flatten() []string {
	out := make([]string, 0, len(s.All)+len(s.Chat)+len(s.Post))
	out = append(out, s.All...)
	out = append(out, s.Chat...)
	out = append(out, s.Post...)
	return out
}

// Definition is the full durable personality payload. Two definitions that
// are field-for-field identical hash to the same digest and therefore share
// one backing runtime.
type Definition struct {
	Name            string             `json:"name" yaml:"name"`
	Bio             []string           `json:"bio" yaml:"bio"`
	Lore            []string           `json:"lore" yaml:"lore"`
	Knowledge       []string           `json:"knowledge" yaml:"knowledge"`
	Topics          []string           `json:"topics" yaml:"topics"`
	Adjectives      []string           `json:"adjectives" yaml:"adjectives"`
	Style           Style              `json:"style" yaml:"style"`
	MessageExamples [][]ExampleMessage `json:"messageExamples" yaml:"messageExamples"`
	Actions         []ActionDefinition `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Action returns the declared action matching name, or nil.
func (d *Definition) Action(name string) *ActionDefinition {
	for i := range d.Actions {
		if d.Actions[i].Name == name {
			return &d.Actions[i]
		}
	}
	return nil
}

// Character is a registered definition handle: the definition plus its
// computed content hash. Handles are cheap values; the registry keys its
// runtime bindings by Hash, not by handle identity.
type Character struct {
	Definition Definition
	Hash       string
}

// New computes the definition's hash and wraps it in a handle.
func New(def Definition) Character {
	return Character{Definition: def, Hash: Hash(def)}
}
