package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a schema, the resources
// populating it and the queries to check against them.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is inline CUE source, applied after SchemaFiles.
	Schema string `yaml:"schema,omitempty"`

	// SchemaFiles lists CUE files to apply, in order. Relative paths are
	// resolved against the scenario file by LoadScenarioWithBasePath.
	SchemaFiles []string `yaml:"schema_files,omitempty"`

	// MatchSubclasses makes FROM classes match subclass instances.
	MatchSubclasses bool `yaml:"match_subclasses,omitempty"`

	// Resources are created in order before the changes and queries run.
	Resources []ResourceStep `yaml:"resources,omitempty"`

	// Changes are schema fragments applied after the resources exist.
	Changes []ChangeStep `yaml:"changes,omitempty"`

	// Queries are executed last, in order.
	Queries []QueryStep `yaml:"queries"`
}

// ResourceStep creates one resource.
type ResourceStep struct {
	Class string `yaml:"class"`
	Name  string `yaml:"name"`

	// Parent names a resource created earlier in the scenario.
	Parent string `yaml:"parent,omitempty"`

	// Values assigns attributes by name.
	Values map[string]interface{} `yaml:"values,omitempty"`

	// Error, when set, is a substring of the error creation must fail
	// with.
	Error string `yaml:"error,omitempty"`
}

// ChangeStep applies a CUE schema fragment to the populated schema.
type ChangeStep struct {
	Schema string `yaml:"schema"`

	// Error, when set, is a substring of the error the change must fail
	// with.
	Error string `yaml:"error,omitempty"`
}

// QueryStep runs one RML statement.
type QueryStep struct {
	Name   string       `yaml:"name"`
	Query  string       `yaml:"query"`
	Expect *QueryExpect `yaml:"expect,omitempty"`
}

// QueryExpect lists what a query must produce. Unset fields are not
// checked.
type QueryExpect struct {
	Rows        [][]string `yaml:"rows,omitempty"`
	Count       *int       `yaml:"count,omitempty"`
	Values      [][]string `yaml:"values,omitempty"`
	SQLContains []string   `yaml:"sql_contains,omitempty"`
	Error       string     `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema file paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve schema paths relative to base path BEFORE validation
	for i, p := range scenario.SchemaFiles {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.SchemaFiles[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validIdentifier.MatchString(s.Name) {
		return fmt.Errorf("name %q must be an identifier", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" && len(s.SchemaFiles) == 0 {
		return fmt.Errorf("schema or schema_files is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for _, p := range s.SchemaFiles {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", p)
		}
	}

	names := make(map[string]bool)
	for i, r := range s.Resources {
		if r.Class == "" {
			return fmt.Errorf("resources[%d]: class is required", i)
		}
		if r.Name == "" {
			return fmt.Errorf("resources[%d]: name is required", i)
		}
		if r.Parent != "" && !names[r.Parent] {
			return fmt.Errorf("resources[%d]: parent %q is not created before", i, r.Parent)
		}
		if r.Error == "" {
			names[r.Name] = true
		}
	}

	for i, c := range s.Changes {
		if c.Schema == "" {
			return fmt.Errorf("changes[%d]: schema is required", i)
		}
	}

	seen := make(map[string]bool)
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
		if q.Query == "" {
			return fmt.Errorf("queries[%d]: query is required", i)
		}
		if err := validateExpect(i, q.Expect); err != nil {
			return err
		}
	}
	return nil
}

// validateExpect rejects expectations that cannot hold together.
func validateExpect(index int, e *QueryExpect) error {
	if e == nil {
		return nil
	}
	if e.Error != "" && (e.Rows != nil || e.Count != nil || e.Values != nil) {
		return fmt.Errorf("queries[%d].expect: error excludes rows, count and values", index)
	}
	if e.Count != nil && *e.Count < 0 {
		return fmt.Errorf("queries[%d].expect: count must be non-negative", index)
	}
	if e.Count != nil && e.Rows != nil && *e.Count != len(e.Rows) {
		return fmt.Errorf("queries[%d].expect: count %d disagrees with %d rows", index, *e.Count, len(e.Rows))
	}
	return nil
}
