package domain

import "strings"

// Material names a storage class with its own grid shape.
type Material string

// Material classes known to the default storage rules.
const (
	MaterialBiofluid Material = "BIOFLUID"
	MaterialPaxgene  Material = "PAXGENE"
	MaterialDNA      Material = "DNA"
	MaterialCells    Material = "CELLS"
)

// CanonicalMaterial normalizes a material key: whitespace trimmed, upper case.
func CanonicalMaterial(s string) Material {
	return Material(strings.ToUpper(strings.TrimSpace(s)))
}

// CanonicalBiomaterial normalizes a biomaterial value from a record: trimmed,
// inner whitespace collapsed, lower case ("EDTA  Plasma " -> "edta plasma").
func CanonicalBiomaterial(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
