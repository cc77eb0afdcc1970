// Package report renders the plain-text validation report handed to the
// operator at the end of a run.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// Title heads every report.
const Title = "Biorepository Data Validation Report"

const (
	recommendUpload = "Import file passed all checks and may be uploaded."
	recommendReview = "Import file has unresolved issues; review before upload."
)

// Report is the outcome of one validation run.
type Report struct {
	Generated          time.Time
	RunID              string
	ImportPath         string
	ReferencePath      string
	Rows               int
	DuplicateConflicts int
	Warnings           []string
	LabIDMessages      []string
	Artifacts          []string
}

// Recommendation states whether the import may be uploaded.
func (r Report) Recommendation() string {
	if r.DuplicateConflicts == 0 {
		return recommendUpload
	}
	return recommendReview
}

// Render writes the report as text.
func (r Report) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString(Title + "\n")
	fmt.Fprintf(&b, "Date: %s\n", r.Generated.Format("2006-01-02 15:04"))
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	b.WriteString("Input files:\n")
	fmt.Fprintf(&b, " - Import: %s\n", r.ImportPath)
	fmt.Fprintf(&b, " - Reference: %s\n\n", r.ReferencePath)

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, " - Number of import rows processed: %d\n", r.Rows)
	fmt.Fprintf(&b, " - Duplicate position conflicts: %d\n\n", r.DuplicateConflicts)

	writeList(&b, "Warnings:", r.Warnings)
	writeList(&b, "Lab ID assignment:", r.LabIDMessages)
	if len(r.Artifacts) > 0 {
		writeList(&b, "Artifacts:", r.Artifacts)
	}

	b.WriteString("Recommendation:\n")
	b.WriteString(r.Recommendation() + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Bytes renders the report into memory.
func (r Report) Bytes() []byte {
	var buf bytes.Buffer
	_ = r.Render(&buf)
	return buf.Bytes()
}

func writeList(b *strings.Builder, heading string, items []string) {
	b.WriteString(heading + "\n")
	if len(items) == 0 {
		b.WriteString(" - None\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, " - %s\n", item)
	}
	b.WriteString("\n")
}
