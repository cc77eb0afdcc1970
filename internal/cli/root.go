// Package cli implements the bioval command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"bioval/pkg/domain"
)

// Version is stamped at build time.
var Version = "dev"

// globalFlags are shared by every subcommand and override the environment.
type globalFlags struct {
	envFiles        []string
	rulesFile       string
	logLevel        string
	logFormat       string
	metricsFile     string
	referenceSource string
	referenceCSV    string
	referenceDSN    string
	referenceTable  string
	blobDriver      string
	blobRoot        string
}

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	flags  globalFlags
}

// NewRootCmd builds the command tree reading prompts from in and writing
// results to out and logs to errOut.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}
	root := &cobra.Command{
		Use:     "bioval",
		Short:   "Validate biorepository import files and plan storage positions",
		Version: Version,
		Long: `bioval reconciles a biorepository import file against the records already
held in the repository (REDCap, a CSV export or a SQL table).

It proposes free storage positions for a material, validates both record sets,
rejects storage positions claimed twice, assigns lab patient ids, and stores
every artifact of the run under runs/<run-id>/ in the configured artifact store.

Examples:
  bioval positions --material biofluid
  bioval validate --import import.csv
  bioval run --import import.csv --in-place
  bioval report <run-id>`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringSliceVar(&a.flags.envFiles, "env-file", nil, "Load variables from these .env files (default ./.env if present)")
	pf.StringVar(&a.flags.rulesFile, "rules", "", "YAML storage rules overriding the built-in defaults")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "Write run metrics to this file in Prometheus textfile format")
	pf.StringVar(&a.flags.referenceSource, "reference-source", "", "Reference source: redcap, csv, sqlite, postgres")
	pf.StringVar(&a.flags.referenceCSV, "reference-csv", "", "Reference CSV export (implies --reference-source csv)")
	pf.StringVar(&a.flags.referenceDSN, "reference-dsn", "", "SQLite path or Postgres DSN of the reference table")
	pf.StringVar(&a.flags.referenceTable, "reference-table", "", "Table holding the reference records")
	pf.StringVar(&a.flags.blobDriver, "blob-driver", "", "Artifact store: fs, s3, memory")
	pf.StringVar(&a.flags.blobRoot, "blob-root", "", "Artifact directory for the fs store")

	root.AddCommand(a.positionsCmd())
	root.AddCommand(a.validateCmd())
	root.AddCommand(a.runCmd())
	root.AddCommand(a.reportCmd())
	return root
}

// Execute runs the command line and returns the process exit code. A run
// cancelled by the operator exits 0.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	root := NewRootCmd(in, out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrCancelled):
		fmt.Fprintln(errOut, color.New(color.FgYellow).Sprint("Run cancelled, nothing was written."))
		return 0
	default:
		fmt.Fprintf(errOut, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		return 1
	}
}
