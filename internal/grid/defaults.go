package grid

import (
	"strconv"

	"bioval/pkg/domain"
)

// DefaultSpec returns the storage layout of the biorepository.
func DefaultSpec() Spec {
	return Spec{
		Materials: map[string]MaterialSpec{
			string(domain.MaterialBiofluid): {
				Freezers:     []string{"1", "2", "3"},
				Racks:        seq(1, 7),
				BoxesPerRack: 7,
				Rows:         letters("ABCDEFGH"),
				Cols:         cols(12),
				StorageLabel: "-80 freezers (1–3)",
				Biomaterials: []string{"urin", "edta plasma", "serum", "csf", "csf pellet"},
			},
			string(domain.MaterialPaxgene): {
				Freezers:     []string{"1", "2", "3"},
				Racks:        seq(1, 7),
				BoxesPerRack: 7,
				Rows:         letters("ABCDEFG"),
				Cols:         cols(7),
				StorageLabel: "-80 freezers (1–3)",
				Biomaterials: []string{"paxgene"},
			},
			string(domain.MaterialDNA): {
				Freezers:     []string{"4deg"},
				Racks:        seq(1, 7),
				BoxesPerRack: 7,
				Rows:         letters("ABCDEFGHIJ"),
				Cols:         cols(10),
				StorageLabel: "4-degree freezer",
				Biomaterials: []string{"dna"},
			},
			string(domain.MaterialCells): {
				Freezers:     []string{"nitrogen"},
				Racks:        seq(1, 7),
				BoxesPerRack: 14,
				Rows:         letters("ABCDEFGHIJ"),
				Cols:         cols(10),
				StorageLabel: "nitrogen tank",
				Biomaterials: []string{"fibroblasten", "pbmc"},
			},
		},
		FreezerOrder: map[string]int{
			"1":        1,
			"2":        2,
			"3":        3,
			"4deg":     4,
			"nitrogen": 5,
		},
	}
}

// Default builds the catalog of DefaultSpec. It panics only if the built-in table is broken.
func Default() *Catalog {
	c, err := DefaultSpec().Build()
	if err != nil {
		panic(err)
	}
	return c
}

func seq(from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

func cols(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func letters(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
