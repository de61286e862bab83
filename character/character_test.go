package character

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() Definition {
	return Definition{
		Name:       "Ava",
		Bio:        []string{"Ava is a cheerful travel concierge."},
		Lore:       []string{"Ava has visited every continent."},
		Knowledge:  []string{"flight routes"},
		Topics:     []string{"travel"},
		Adjectives: []string{"cheerful"},
		Style:      Style{Chat: []string{"Keep replies short."}},
		MessageExamples: [][]ExampleMessage{{
			{User: "Bob", Text: "hi"},
			{User: "Ava", Text: "hello!"},
		}},
	}
}

func TestHash_Deterministic(t *testing.T) {
	d1 := validDefinition()
	d2 := validDefinition()
	assert.Equal(t, Hash(d1), Hash(d2))

	d2.Bio = []string{"Ava is a grumpy travel concierge."}
	assert.NotEqual(t, Hash(d1), Hash(d2))
}

func TestHash_SensitiveToEveryField(t *testing.T) {
	base := Hash(validDefinition())

	mutations := map[string]func(*Definition){
		"name":       func(d *Definition) { d.Name = "Eve" },
		"lore":       func(d *Definition) { d.Lore = append(d.Lore, "extra") },
		"style":      func(d *Definition) { d.Style.Post = []string{"be brief"} },
		"adjectives": func(d *Definition) { d.Adjectives = []string{"stoic"} },
		"actions": func(d *Definition) {
			d.Actions = []ActionDefinition{{Name: "wave", Description: "wave hello"}}
		},
	}
	for name, mutate := range mutations {
		d := validDefinition()
		mutate(&d)
		assert.NotEqual(t, base, Hash(d), "mutation %s should change the hash", name)
	}
}

func TestStyle_Flatten(t *testing.T) {
	s := Style{All: []string{"a"}, Chat: []string{"c"}, Post: []string{"p"}}
	assert.Equal(t, []string{"a", "c", "p"}, s.Flatten())
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(validDefinition()))
}

func TestValidate_MissingBio(t *testing.T) {
	d := validDefinition()
	d.Bio = nil

	err := Validate(d)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "bio")
}

func TestValidate_EnumeratesEveryViolation(t *testing.T) {
	d := validDefinition()
	d.Name = ""
	d.Topics = nil
	d.Style = Style{}

	err := Validate(d)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Violations, 3)
}

func TestValidate_ActionShape(t *testing.T) {
	d := validDefinition()
	d.Actions = []ActionDefinition{{
		Name:        "",
		Description: "",
		Parameters:  []Parameter{{Name: "x", Type: "date"}},
	}}

	err := Validate(d)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	fields := make([]string, 0, len(vErr.Violations))
	for _, v := range vErr.Violations {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "actions[0].name")
	assert.Contains(t, fields, "actions[0].description")
	assert.Contains(t, fields, "actions[0].similes")
	assert.Contains(t, fields, "actions[0].examples")
	assert.Contains(t, fields, "actions[0].parameters[0].type")
}

func TestValidate_EmptyTranscript(t *testing.T) {
	d := validDefinition()
	d.MessageExamples = [][]ExampleMessage{{}}

	err := Validate(d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messageExamples[0]")
}

func TestDefinition_Action(t *testing.T) {
	d := validDefinition()
	d.Actions = []ActionDefinition{{Name: "setMood", Description: "set the mood"}}

	assert.NotNil(t, d.Action("setMood"))
	assert.Nil(t, d.Action("unknown"))
}

func TestLoadFile_YAML(t *testing.T) {
	data := `
name: Ava
bio: ["Ava is a concierge."]
lore: ["Well traveled."]
knowledge: ["routes"]
topics: ["travel"]
adjectives: ["cheerful"]
style:
  chat: ["Keep it short."]
`
	path := filepath.Join(t.TempDir(), "ava.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	def, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ava", def.Name)
	assert.Equal(t, []string{"Keep it short."}, def.Style.Chat)
}

func TestLoadFile_JSON(t *testing.T) {
	data := `{
  "name": "Ava",
  "bio": ["Ava is a concierge."],
  "lore": ["Well traveled."],
  "knowledge": ["routes"],
  "topics": ["travel"],
  "adjectives": ["cheerful"],
  "style": {"chat": ["Keep it short."]}
}`
	path := filepath.Join(t.TempDir(), "ava.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	def, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ava", def.Name)
}

func TestLoadFile_InvalidDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "Ava"}`), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
