// Package positions computes the storage coordinate space of a material, the
// slots occupied by stored tubes, the slots still free, and which free slots to
// offer for the next batch of tubes.
package positions

import (
	"sort"

	"bioval/internal/grid"
	"bioval/pkg/domain"
)

// Policy tunes occupancy detection and slot selection.
type Policy struct {
	// StoredStatus is the tube_status value marking a tube as physically stored.
	StoredStatus string `yaml:"stored_status" validate:"required"`
	// SingleLimit caps the single-unit strategy.
	SingleLimit int `yaml:"single_limit" validate:"min=1"`
	// BatchMinFree is the minimum number of free slots a box needs to be offered.
	BatchMinFree int `yaml:"batch_min_free" validate:"min=0"`
	// BatchMaxSlots and BatchMaxBoxes stop the batch strategy, whichever is reached first.
	BatchMaxSlots int `yaml:"batch_max_slots" validate:"min=1"`
	BatchMaxBoxes int `yaml:"batch_max_boxes" validate:"min=1"`
	// BatchMaterials use the batch strategy; every other material uses single-unit selection.
	BatchMaterials []string `yaml:"batch_materials"`
}

// DefaultPolicy returns the repository's batching convention.
func DefaultPolicy() Policy {
	return Policy{
		StoredStatus:   "1",
		SingleLimit:    20,
		BatchMinFree:   15,
		BatchMaxSlots:  40,
		BatchMaxBoxes:  2,
		BatchMaterials: []string{string(domain.MaterialBiofluid)},
	}
}

// Strategy names a selection strategy.
type Strategy string

const (
	StrategySingle Strategy = "single"
	StrategyBatch  Strategy = "batch"
)

// Engine evaluates the coordinate space of a grid catalog.
type Engine struct {
	catalog *grid.Catalog
	policy  Policy
	batch   map[domain.Material]struct{}
}

// NewEngine constructs an engine over an immutable catalog and policy.
func NewEngine(catalog *grid.Catalog, policy Policy) *Engine {
	e := &Engine{catalog: catalog, policy: policy, batch: make(map[domain.Material]struct{})}
	for _, m := range policy.BatchMaterials {
		e.batch[domain.CanonicalMaterial(m)] = struct{}{}
	}
	return e
}

// Catalog returns the grid catalog the engine evaluates.
func (e *Engine) Catalog() *grid.Catalog { return e.catalog }

// FullSpace returns every coordinate of the material's grid.
func (e *Engine) FullSpace(material string) (Set, error) {
	def, err := e.catalog.Lookup(material)
	if err != nil {
		return nil, err
	}
	positions := def.Positions()
	boxes := def.Boxes()
	out := make(Set, def.Size())
	for _, freezer := range def.Freezers {
		for _, rack := range def.Racks {
			for _, box := range boxes {
				for _, pos := range positions {
					out.Add(domain.NewCoordinate(freezer, rack, box, pos))
				}
			}
		}
	}
	return out, nil
}

// Occupancy returns the coordinates of records marked stored. Records with
// any blank coordinate component cannot occupy a slot and are skipped.
func (e *Engine) Occupancy(records []domain.Record) Set {
	out := make(Set)
	for _, r := range records {
		if r.Get(domain.FieldTubeStatus) != e.policy.StoredStatus {
			continue
		}
		if c, ok := r.Coordinate(); ok {
			out.Add(c)
		}
	}
	return out
}

// Available is the material's full space minus the occupancy of records.
func (e *Engine) Available(material string, records []domain.Record) (Set, error) {
	full, err := e.FullSpace(material)
	if err != nil {
		return nil, err
	}
	return full.Minus(e.Occupancy(records)), nil
}

// StrategyFor returns the selection strategy configured for a material.
func (e *Engine) StrategyFor(material string) (Strategy, error) {
	def, err := e.catalog.Lookup(material)
	if err != nil {
		return "", err
	}
	if _, ok := e.batch[def.Material]; ok {
		return StrategyBatch, nil
	}
	return StrategySingle, nil
}

// Select picks coordinates from an availability set using the material's strategy.
func (e *Engine) Select(material string, available Set) ([]domain.Coordinate, error) {
	strategy, err := e.StrategyFor(material)
	if err != nil {
		return nil, err
	}
	if strategy == StrategyBatch {
		return e.SelectBatch(available), nil
	}
	return e.SelectSingle(available), nil
}

// SelectSingle returns the first SingleLimit coordinates in canonical order.
func (e *Engine) SelectSingle(available Set) []domain.Coordinate {
	coords := available.Natural()
	SortCanonical(e.catalog, coords)
	if len(coords) > e.policy.SingleLimit {
		coords = coords[:e.policy.SingleLimit]
	}
	return coords
}

type boxGroup struct {
	key       domain.BoxKey
	positions []string
}

// SelectBatch offers whole boxes: boxes with fewer than BatchMinFree free
// slots are skipped, qualifying boxes are emitted slot by slot in canonical
// in-box order, and selection stops at BatchMaxSlots slots or after
// BatchMaxBoxes boxes, whichever comes first.
func (e *Engine) SelectBatch(available Set) []domain.Coordinate {
	groups := groupByBox(available.Natural())
	var selected []domain.Coordinate
	boxes := 0
	for _, g := range groups {
		if len(g.positions) < e.policy.BatchMinFree {
			continue
		}
		boxes++
		for _, pos := range g.positions {
			selected = append(selected, domain.Coordinate{Freezer: g.key.Freezer, Rack: g.key.Rack, Box: g.key.Box, Position: pos})
			if len(selected) >= e.policy.BatchMaxSlots {
				return selected
			}
		}
		if boxes >= e.policy.BatchMaxBoxes {
			break
		}
	}
	return selected
}

// groupByBox groups coordinates by box, keeping boxes in first-seen order and
// sorting positions inside each box.
func groupByBox(coords []domain.Coordinate) []*boxGroup {
	index := make(map[domain.BoxKey]*boxGroup)
	var groups []*boxGroup
	for _, c := range coords {
		key := c.BoxKey()
		g, ok := index[key]
		if !ok {
			g = &boxGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.positions = append(g.positions, c.Position)
	}
	for _, g := range groups {
		sort.SliceStable(g.positions, func(i, j int) bool { return ComparePosition(g.positions[i], g.positions[j]) < 0 })
	}
	return groups
}
