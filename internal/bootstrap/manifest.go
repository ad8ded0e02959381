package bootstrap

import (
	"os"

	"github.com/porgproject/porg/internal/perr"
	"gopkg.in/yaml.v3"
)

// Phase is one entry of a bootstrap manifest: a named step that builds
// Recipe and installs it into Stage (or the final root, if Stage is
// empty).
type Phase struct {
	Name   string `yaml:"name"`
	Recipe string `yaml:"recipe"`
	Stage  string `yaml:"stage,omitempty"`
}

// Manifest is an ordered list of phases, per spec.md §4.J. Unlike recipe
// files, a manifest is a trusted, hand-maintained input with a fixed
// small schema, so it's decoded straight into a struct rather than walked
// node-by-node for position-accurate errors.
type Manifest struct {
	Phases []Phase `yaml:"phases"`
}

// LoadManifest reads and parses a bootstrap manifest file.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.IOError.Newf("reading bootstrap manifest %s: %v", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, perr.ParseError.Newf("parsing bootstrap manifest %s: %v", path, err)
	}
	if len(m.Phases) == 0 {
		return nil, perr.InvalidInput.Newf("bootstrap manifest %s has no phases", path)
	}
	return &m, nil
}

func (m *Manifest) indexOf(name string) int {
	for i, p := range m.Phases {
		if p.Name == name {
			return i
		}
	}
	return -1
}
