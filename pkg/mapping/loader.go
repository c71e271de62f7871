package mapping

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// mappingFile is the on-disk layout of a mapping file. A file holds either
// a single mapping at the top level or a list under `entities`.
type mappingFile struct {
	EntityMapping `yaml:",inline"`
	Entities      []EntityMapping `yaml:"entities"`
}

// LoadFromFile reads the mappings defined in one YAML file.
func LoadFromFile(path string) ([]EntityMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("empty mapping file")
	}

	var f mappingFile
	if unmarshalErr := yaml.Unmarshal(data, &f); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	mappings := f.Entities
	if f.EntityDefinition != "" {
		mappings = append([]EntityMapping{f.EntityMapping}, mappings...)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("no entity mapping defined")
	}

	for i, m := range mappings {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
	}
	return mappings, nil
}

// LoadDir loads every .yaml/.yml file of dir in name order. The first file
// that fails to load fails the whole directory. A missing directory yields
// no mappings.
func LoadDir(dir string) ([]EntityMapping, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []EntityMapping
	for _, name := range names {
		path := filepath.Join(dir, name)
		ms, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load mappings from %s: %w", path, err)
		}
		out = append(out, ms...)
	}
	return out, nil
}

// Validate checks a single mapping.
func (m EntityMapping) Validate() error {
	if strings.TrimSpace(m.EntityDefinition) == "" {
		return fmt.Errorf("entity definition is required")
	}
	if strings.ContainsAny(m.EntityDefinition, `/\*?[`) {
		return fmt.Errorf("entity definition %q contains path or pattern characters", m.EntityDefinition)
	}
	for _, r := range m.Renditions {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("entity %s: empty rendition prefix", m.EntityDefinition)
		}
	}
	return nil
}

// Merge appends extra to base, dropping entries whose definition was
// already seen (case-insensitive). Entries with an empty definition are
// kept so the runner can report and skip them.
func Merge(base []EntityMapping, extra ...[]EntityMapping) []EntityMapping {
	seen := make(map[string]bool)
	var out []EntityMapping
	add := func(m EntityMapping) {
		key := strings.ToLower(m.EntityDefinition)
		if key != "" && seen[key] {
			log.Printf("[Mapping] Duplicate mapping for %s ignored", m.EntityDefinition)
			return
		}
		seen[key] = true
		out = append(out, m)
	}
	for _, m := range base {
		add(m)
	}
	for _, list := range extra {
		for _, m := range list {
			add(m)
		}
	}
	return out
}
