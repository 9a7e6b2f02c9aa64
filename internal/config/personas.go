package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/collab/pkg/types"
)

// personaGlob matches persona definition files below a .collab directory.
const personaGlob = "agents/**/*.{yaml,yml,json}"

// personaFile is the on-disk form of a persona. The persona name defaults to
// the file name without extension.
type personaFile struct {
	Persona             string `json:"persona,omitempty" yaml:"persona,omitempty"`
	types.PersonaConfig `yaml:",inline"`
}

// DiscoverPersonas reads persona definitions from configDir/agents. Files
// are applied in lexical order, so a later file overrides an earlier one
// with the same persona.
func DiscoverPersonas(configDir string) (map[string]types.PersonaConfig, error) {
	personas := make(map[string]types.PersonaConfig)
	if _, err := os.Stat(filepath.Join(configDir, "agents")); err != nil {
		return personas, nil
	}

	matches, err := doublestar.Glob(os.DirFS(configDir), personaGlob)
	if err != nil {
		return nil, fmt.Errorf("discover personas: %w", err)
	}
	sort.Strings(matches)

	for _, match := range matches {
		file := filepath.Join(configDir, filepath.FromSlash(match))
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		var pf personaFile
		if strings.HasSuffix(match, ".json") {
			err = json.Unmarshal(data, &pf)
		} else {
			err = yaml.Unmarshal(interpolate(data, filepath.Dir(file), false), &pf)
		}
		if err != nil {
			return nil, fmt.Errorf("parse persona %s: %w", file, err)
		}

		name := strings.TrimSpace(pf.Persona)
		if name == "" {
			base := path.Base(match)
			name = strings.TrimSuffix(base, path.Ext(base))
		}
		personas[name] = pf.PersonaConfig
	}
	return personas, nil
}
