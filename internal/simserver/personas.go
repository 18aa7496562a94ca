package simserver

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/feedsim/internal/feed"
)

//go:embed personas/schema.cue personas/default.cue
var personaFiles embed.FS

// LoadPersonas reads a persona roster from a CUE file and validates it
// against the roster schema. An empty path loads the built-in roster.
func LoadPersonas(path string) ([]feed.Persona, error) {
	name := "personas/default.cue"
	var (
		src []byte
		err error
	)
	if path == "" {
		src, err = personaFiles.ReadFile(name)
	} else {
		name = path
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	return ParsePersonas(name, src)
}

// ParsePersonas validates CUE source against the roster schema and
// decodes it. Persona names must be unique, ignoring case.
func ParsePersonas(filename string, src []byte) ([]feed.Persona, error) {
	schemaSrc, err := personaFiles.ReadFile("personas/schema.cue")
	if err != nil {
		return nil, fmt.Errorf("read persona schema: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile persona schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	roster := schema.LookupPath(cue.ParsePath("#Roster")).Unify(data)
	if err := roster.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s: invalid roster: %w", filename, err)
	}

	var out struct {
		Personas []feed.Persona `json:"personas"`
	}
	if err := roster.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode roster: %w", filename, err)
	}

	seen := make(map[string]bool, len(out.Personas))
	for _, p := range out.Personas {
		key := strings.ToLower(p.Name)
		if seen[key] {
			return nil, fmt.Errorf("%s: duplicate persona %q", filename, p.Name)
		}
		seen[key] = true
	}
	return out.Personas, nil
}
