package simserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPersonas_Default(t *testing.T) {
	personas, err := LoadPersonas("")
	require.NoError(t, err)

	names := make([]string, len(personas))
	for i, p := range personas {
		names[i] = p.Name
		assert.Equal(t, "llama3.2", p.Model, "default model for %s", p.Name)
		require.NotNil(t, p.Profile)
		require.NotNil(t, p.PoliticalStance)
	}
	assert.Equal(t, []string{"Clara", "Tom", "Aisha", "Max", "Marcus", "Sofia", "Luna", "Ethan"}, names)
}

func TestLoadPersonas_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.cue")
	src := `personas: [
	{name: "Nova", model: "mistral", belief_anchor: "Question everything."},
	{name: "Orin", political_stance: {economic: 0.5, social: -0.5, authority: 0}},
]
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	personas, err := LoadPersonas(path)
	require.NoError(t, err)
	require.Len(t, personas, 2)
	assert.Equal(t, "mistral", personas[0].Model)
	assert.Equal(t, "Question everything.", personas[0].BeliefAnchor)
	assert.Nil(t, personas[0].Profile)
	assert.Equal(t, "llama3.2", personas[1].Model)
	assert.Equal(t, 0.5, personas[1].PoliticalStance.Economic)
}

func TestParsePersonas_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `personas: [`},
		{"empty roster", `personas: []`},
		{"missing name", `personas: [{model: "x"}]`},
		{"blank name", `personas: [{name: "  "}]`},
		{"unknown field", `personas: [{name: "A", mood: "happy"}]`},
		{"stance out of range", `personas: [{name: "A", political_stance: {economic: 2, social: 0, authority: 0}}]`},
		{"bad intensity", `personas: [{name: "A", political_stance: {economic: 0, social: 0, authority: 0, opinion_intensity: "extreme"}}]`},
		{"duplicate name", `personas: [{name: "Ann"}, {name: "ann"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePersonas("test.cue", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoadPersonas_MissingFile(t *testing.T) {
	_, err := LoadPersonas(filepath.Join(t.TempDir(), "nope.cue"))
	assert.Error(t, err)
}
