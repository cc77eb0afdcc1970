// Package grid describes the storage topology of each material class: which
// freezers, racks, boxes and in-box rows/columns make up its coordinate space.
//
// A Catalog is built once from a Spec and never mutated afterwards; engines
// receive it explicitly instead of reading process-wide tables.
package grid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bioval/pkg/domain"
)

// UnknownFreezerRank orders freezers missing from the freezer order after all known ones.
const UnknownFreezerRank = 99

// Definition is the grid of one material class.
type Definition struct {
	Material     domain.Material
	Freezers     []string
	Racks        []string
	BoxesPerRack int
	Rows         []string
	Cols         []int
	// StorageLabel names the allowed storage in operator messages, e.g. "nitrogen tank".
	StorageLabel string

	positions map[string]struct{}
	freezers  map[string]struct{}
}

// Size is the number of coordinates the definition spans.
func (d Definition) Size() int {
	return len(d.Freezers) * len(d.Racks) * d.BoxesPerRack * len(d.Rows) * len(d.Cols)
}

// Boxes returns the box numbers 1..BoxesPerRack as strings.
func (d Definition) Boxes() []string {
	out := make([]string, 0, d.BoxesPerRack)
	for i := 1; i <= d.BoxesPerRack; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

// Positions returns every in-box position code, rows outer, columns inner.
func (d Definition) Positions() []string {
	out := make([]string, 0, len(d.Rows)*len(d.Cols))
	for _, row := range d.Rows {
		for _, col := range d.Cols {
			out = append(out, domain.PositionCode(row, col))
		}
	}
	return out
}

// AllowsPosition reports whether pos is a valid in-box position for the material.
func (d Definition) AllowsPosition(pos string) bool {
	_, ok := d.positions[domain.CanonicalPosition(pos)]
	return ok
}

// AllowsFreezer reports whether the material may be stored in freezer.
func (d Definition) AllowsFreezer(freezer string) bool {
	_, ok := d.freezers[domain.CanonicalFreezer(freezer)]
	return ok
}

// PositionRange renders the position span for messages, e.g. "A1–H12".
func (d Definition) PositionRange() string {
	if len(d.Rows) == 0 || len(d.Cols) == 0 {
		return ""
	}
	minCol, maxCol := d.Cols[0], d.Cols[0]
	for _, c := range d.Cols {
		minCol = min(minCol, c)
		maxCol = max(maxCol, c)
	}
	first := domain.PositionCode(d.Rows[0], minCol)
	last := domain.PositionCode(d.Rows[len(d.Rows)-1], maxCol)
	return first + "–" + last
}

// Catalog is the immutable set of material grid definitions plus the freezer
// order and the biomaterial-to-class mapping.
type Catalog struct {
	defs         map[domain.Material]Definition
	materials    []domain.Material
	freezerRank  map[string]int
	biomaterials map[string]domain.Material
}

// Lookup returns the definition for a material key (case and whitespace
// insensitive). Unknown keys yield *domain.UnknownMaterialError.
func (c *Catalog) Lookup(key string) (Definition, error) {
	m := domain.CanonicalMaterial(key)
	def, ok := c.defs[m]
	if !ok {
		return Definition{}, &domain.UnknownMaterialError{Material: string(m)}
	}
	return def, nil
}

// Materials lists the defined material keys in sorted order.
func (c *Catalog) Materials() []domain.Material {
	out := make([]domain.Material, len(c.materials))
	copy(out, c.materials)
	return out
}

// Classify maps a record's biomaterial value to its material class.
func (c *Catalog) Classify(biomaterial string) (domain.Material, bool) {
	m, ok := c.biomaterials[domain.CanonicalBiomaterial(biomaterial)]
	return m, ok
}

// FreezerRank returns the sort rank of a freezer; unknown freezers rank UnknownFreezerRank.
func (c *Catalog) FreezerRank(freezer string) int {
	if r, ok := c.freezerRank[domain.CanonicalFreezer(freezer)]; ok {
		return r
	}
	return UnknownFreezerRank
}

// Spec is the declarative, YAML-loadable form of a Catalog.
type Spec struct {
	Materials    map[string]MaterialSpec `yaml:"materials"`
	FreezerOrder map[string]int          `yaml:"freezer_order"`
}

// MaterialSpec declares one material's grid and the biomaterial names belonging to it.
type MaterialSpec struct {
	Freezers     []string `yaml:"freezers"`
	Racks        []string `yaml:"racks"`
	BoxesPerRack int      `yaml:"boxes_per_rack"`
	Rows         []string `yaml:"rows"`
	Cols         []int    `yaml:"cols"`
	StorageLabel string   `yaml:"storage_label"`
	Biomaterials []string `yaml:"biomaterials"`
}

// Build validates the spec and produces an immutable Catalog.
func (s Spec) Build() (*Catalog, error) {
	if len(s.Materials) == 0 {
		return nil, fmt.Errorf("grid spec defines no materials")
	}
	c := &Catalog{
		defs:         make(map[domain.Material]Definition, len(s.Materials)),
		freezerRank:  make(map[string]int, len(s.FreezerOrder)),
		biomaterials: make(map[string]domain.Material),
	}
	for f, rank := range s.FreezerOrder {
		c.freezerRank[domain.CanonicalFreezer(f)] = rank
	}
	for key, ms := range s.Materials {
		m := domain.CanonicalMaterial(key)
		if m == "" {
			return nil, fmt.Errorf("grid spec contains a blank material key")
		}
		if _, dup := c.defs[m]; dup {
			return nil, fmt.Errorf("material %s defined twice", m)
		}
		def, err := buildDefinition(m, ms)
		if err != nil {
			return nil, err
		}
		for _, name := range ms.Biomaterials {
			bm := domain.CanonicalBiomaterial(name)
			if prev, taken := c.biomaterials[bm]; taken && prev != m {
				return nil, fmt.Errorf("biomaterial %q assigned to both %s and %s", bm, prev, m)
			}
			c.biomaterials[bm] = m
		}
		c.defs[m] = def
		c.materials = append(c.materials, m)
	}
	sort.Slice(c.materials, func(i, j int) bool { return c.materials[i] < c.materials[j] })
	return c, nil
}

func buildDefinition(m domain.Material, ms MaterialSpec) (Definition, error) {
	switch {
	case len(ms.Freezers) == 0:
		return Definition{}, fmt.Errorf("material %s: no freezers", m)
	case len(ms.Racks) == 0:
		return Definition{}, fmt.Errorf("material %s: no racks", m)
	case ms.BoxesPerRack <= 0:
		return Definition{}, fmt.Errorf("material %s: boxes_per_rack must be positive", m)
	case len(ms.Rows) == 0 || len(ms.Cols) == 0:
		return Definition{}, fmt.Errorf("material %s: rows and cols required", m)
	}
	def := Definition{
		Material:     m,
		BoxesPerRack: ms.BoxesPerRack,
		StorageLabel: ms.StorageLabel,
		positions:    make(map[string]struct{}),
		freezers:     make(map[string]struct{}),
	}
	for _, f := range ms.Freezers {
		f = domain.CanonicalFreezer(f)
		def.Freezers = append(def.Freezers, f)
		def.freezers[f] = struct{}{}
	}
	for _, r := range ms.Racks {
		def.Racks = append(def.Racks, strings.TrimSpace(r))
	}
	for _, row := range ms.Rows {
		row = domain.CanonicalPosition(row)
		if row == "" || strings.IndexFunc(row, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
			return Definition{}, fmt.Errorf("material %s: invalid row %q", m, row)
		}
		def.Rows = append(def.Rows, row)
	}
	for _, col := range ms.Cols {
		if col <= 0 {
			return Definition{}, fmt.Errorf("material %s: invalid column %d", m, col)
		}
		def.Cols = append(def.Cols, col)
	}
	if def.StorageLabel == "" {
		def.StorageLabel = "freezer " + strings.Join(def.Freezers, "/")
	}
	for _, pos := range def.Positions() {
		def.positions[pos] = struct{}{}
	}
	return def, nil
}
