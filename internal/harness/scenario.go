package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixtures are the records and links seeded before queries run. The
// import command reads the same layout.
type Fixtures struct {
	// Records are saved in order. Records without an id get generated ids.
	Records []RecordFixture `yaml:"records,omitempty"`

	// Links add saved records to collection associations, after all
	// records are saved.
	Links []LinkFixture `yaml:"links,omitempty"`
}

// RecordFixture declares one record.
type RecordFixture struct {
	Class string         `yaml:"class"`
	ID    string         `yaml:"id,omitempty"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// LinkFixture adds records to a collection association.
type LinkFixture struct {
	// Owner is "<Class>/<id>".
	Owner       string   `yaml:"owner"`
	Association string   `yaml:"association"`
	IDs         []string `yaml:"ids"`
}

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory, relative to the scenario file.
	Schema string `yaml:"schema"`

	Fixtures `yaml:",inline"`

	// Queries are resolved in order after seeding.
	Queries []Query `yaml:"queries"`
}

// Query declares one chain and its expected result.
type Query struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class"`

	// Scope is "<OwnerClass>/<id>/<association>". The chain then runs over
	// the association's members, which must be of Class.
	Scope string `yaml:"scope,omitempty"`

	Steps  []Step `yaml:"steps,omitempty"`
	Expect Expect `yaml:"expect"`
}

// Sorts reports whether any step of the query sorts.
func (q Query) Sorts() bool {
	for _, s := range q.Steps {
		if s.Sort != "" {
			return true
		}
	}
	return false
}

// Expect is the expected outcome of a query. Nil fields are not checked.
type Expect struct {
	IDs     []string `yaml:"ids,omitempty"`
	Count   *int     `yaml:"count,omitempty"`
	Ordered *bool    `yaml:"ordered,omitempty"`

	// Error is a substring the resolution error must contain.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	if err := decodeStrict(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml scenario directly under dir, sorted by
// file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadFixtures reads a fixture file: a YAML document with records and
// links only.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var f Fixtures
	if err := decodeStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateFixtures(&f); err != nil {
		return nil, fmt.Errorf("invalid fixtures: %w", err)
	}
	return &f, nil
}

func decodeStrict(data []byte, v any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(v)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}
	if err := validateFixtures(&s.Fixtures); err != nil {
		return err
	}

	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}
	names := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		switch {
		case q.Name == "":
			return fmt.Errorf("queries[%d]: name is required", i)
		case names[q.Name]:
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		case q.Class == "":
			return fmt.Errorf("queries[%d]: class is required", i)
		}
		names[q.Name] = true
		if q.Scope != "" {
			if _, _, _, err := ParseScope(q.Scope); err != nil {
				return fmt.Errorf("queries[%d]: %w", i, err)
			}
		}
		for j, step := range q.Steps {
			if err := step.validate(); err != nil {
				return fmt.Errorf("queries[%d].steps[%d]: %w", i, j, err)
			}
		}
		if q.Expect.Error != "" && (q.Expect.IDs != nil || q.Expect.Count != nil) {
			return fmt.Errorf("queries[%d].expect: error excludes ids and count", i)
		}
	}
	return nil
}

func validateFixtures(f *Fixtures) error {
	for i, r := range f.Records {
		if r.Class == "" {
			return fmt.Errorf("records[%d]: class is required", i)
		}
	}
	for i, l := range f.Links {
		if _, _, err := ParseOwner(l.Owner); err != nil {
			return fmt.Errorf("links[%d]: %w", i, err)
		}
		if l.Association == "" {
			return fmt.Errorf("links[%d]: association is required", i)
		}
	}
	return nil
}

// ParseOwner splits "<Class>/<id>".
func ParseOwner(s string) (class, id string, err error) {
	class, id, ok := strings.Cut(s, "/")
	if !ok || class == "" || id == "" || strings.Contains(id, "/") {
		return "", "", fmt.Errorf("owner %q must be <Class>/<id>", s)
	}
	return class, id, nil
}

// ParseScope splits "<Class>/<id>/<association>".
func ParseScope(s string) (class, id, assoc string, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("scope %q must be <Class>/<id>/<association>", s)
	}
	return parts[0], parts[1], parts[2], nil
}
