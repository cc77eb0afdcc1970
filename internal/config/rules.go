package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"bioval/internal/grid"
	"bioval/internal/positions"
	"bioval/internal/validation"
)

// Rules is the storage policy of the repository: grid definitions, slot
// selection thresholds and row validation limits.
type Rules struct {
	Grid       grid.Spec         `yaml:"grid"`
	Positions  positions.Policy  `yaml:"positions"`
	Validation validation.Limits `yaml:"validation"`
}

// DefaultRules returns the built-in repository layout.
func DefaultRules() Rules {
	return Rules{
		Grid:       grid.DefaultSpec(),
		Positions:  positions.DefaultPolicy(),
		Validation: validation.DefaultLimits(),
	}
}

// DecodeRules overlays a YAML document on the defaults. Scalars and lists
// replace their default; a material or freezer entry replaces the default
// entry of the same key and leaves the others untouched. Unknown keys are
// rejected.
func DecodeRules(r io.Reader) (Rules, error) {
	rules := DefaultRules()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("decode rules: %w", err)
	}
	if err := validate.Struct(rules); err != nil {
		return Rules{}, describe(err)
	}
	return rules, nil
}

// LoadRules reads the rules file at path; an empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-selected rules file
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	rules, err := DecodeRules(bytes.NewReader(data))
	if err != nil {
		return Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Runtime is the immutable set of engines built once from Rules and shared
// by every stage of a run.
type Runtime struct {
	Catalog   *grid.Catalog
	Positions *positions.Engine
	Validator *validation.Validator
}

// Build compiles rules into engines.
func (r Rules) Build() (*Runtime, error) {
	catalog, err := r.Grid.Build()
	if err != nil {
		return nil, fmt.Errorf("grid rules: %w", err)
	}
	for _, m := range r.Positions.BatchMaterials {
		if _, err := catalog.Lookup(m); err != nil {
			return nil, fmt.Errorf("batch material: %w", err)
		}
	}
	return &Runtime{
		Catalog:   catalog,
		Positions: positions.NewEngine(catalog, r.Positions),
		Validator: validation.New(catalog, r.Validation),
	}, nil
}
