package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RegistryEntry describes one selectable dataset.
type RegistryEntry struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	Description string `yaml:"description,omitempty"`
}

// Registry lists the datasets a conversation can be pointed at, loaded from a
// YAML file. Relative dataset paths resolve against the registry file's
// directory.
type Registry struct {
	Datasets []RegistryEntry `yaml:"datasets"`

	baseDir string
}

// LoadRegistry reads and validates a registry file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(reg.Datasets) == 0 {
		return nil, fmt.Errorf("registry %s lists no datasets", path)
	}
	seen := make(map[string]bool, len(reg.Datasets))
	for _, e := range reg.Datasets {
		if e.Name == "" || e.Path == "" {
			return nil, fmt.Errorf("registry %s: every dataset needs name and path", path)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("registry %s: duplicate dataset %q", path, e.Name)
		}
		seen[e.Name] = true
	}
	reg.baseDir = filepath.Dir(path)
	return &reg, nil
}

// Names returns dataset names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.Datasets))
	for i, e := range r.Datasets {
		names[i] = e.Name
	}
	return names
}

// Open loads the named dataset and builds its context.
func (r *Registry) Open(name string) (*Context, error) {
	for _, e := range r.Datasets {
		if e.Name != name {
			continue
		}
		path := e.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.baseDir, path)
		}
		t, err := Load(path)
		if err != nil {
			return nil, err
		}
		return NewContext(e.Name, t, e.Description), nil
	}
	return nil, fmt.Errorf("dataset %q not in registry", name)
}
