package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"bioval/internal/pipeline"
	"bioval/pkg/domain"
)

// promptSelector reads the material from the operator.
type promptSelector struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptSelector(in io.Reader, out io.Writer) promptSelector {
	return promptSelector{in: bufio.NewReader(in), out: out}
}

// SelectMaterial lists materials and reads one line. EOF counts as an empty answer.
func (p promptSelector) SelectMaterial(ctx context.Context, materials []domain.Material) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintln(p.out, "Available materials:")
	for _, m := range materials {
		fmt.Fprintf(p.out, "  %s\n", m)
	}
	fmt.Fprint(p.out, "Material (empty to cancel): ")
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read material: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printOutcome(w io.Writer, out *pipeline.Outcome) {
	ok := color.New(color.FgGreen).Sprint("✓")
	fmt.Fprintf(w, "Run %s\n", out.RunID)
	if sel := out.Selection; sel != nil {
		fmt.Fprintf(w, "%s %s (%s): %d of %d free positions selected\n",
			ok, sel.Material, sel.Strategy, len(sel.Coordinates), sel.Available)
	}
	if rec := out.Reconciliation; rec != nil {
		fmt.Fprintf(w, "%s Import file passed all checks: %d row(s), %d new lab id(s)\n",
			ok, len(rec.Rows), rec.NewLabIDs)
		if n := len(rec.Warnings); n > 0 {
			fmt.Fprintf(w, "%s %d warning(s), see report\n", color.New(color.FgYellow).Sprint("!"), n)
		}
	}
	if len(out.Artifacts) > 0 {
		fmt.Fprintln(w, "Artifacts:")
		for _, a := range out.Artifacts {
			fmt.Fprintf(w, "  %s\n", a.Key)
		}
	}
	if out.Report != nil {
		fmt.Fprintln(w, out.Report.Recommendation())
	}
}
