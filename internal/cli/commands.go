package cli

import (
	"context"

	"github.com/spf13/cobra"

	"bioval/internal/pipeline"
)

func (a *app) positionsCmd() *cobra.Command {
	var material string
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Propose free storage positions for a material",
		Long: `Fetch the reference records and store the positions offered for the next
batch of tubes of one material as available_positions_<MATERIAL>.csv.

Without --material the known materials are listed and one is read from stdin;
an empty answer cancels the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Outcome, error) {
				return p.Positions(ctx, pipeline.Request{Material: material})
			})
		},
	}
	cmd.Flags().StringVarP(&material, "material", "m", "", "Material class (BIOFLUID, PAXGENE, DNA, CELLS)")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var req pipeline.Request
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an import file and assign lab ids",
		Long: `Validate the import file and the reference records, reject storage positions
used twice, assign lab patient ids, and store the updated import with a report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Outcome, error) {
				return p.Validate(ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&req.ImportPath, "import", "i", "", "Import CSV file")
	cmd.Flags().BoolVar(&req.InPlace, "in-place", false, "Also overwrite the import file with the assigned lab ids")
	_ = cmd.MarkFlagRequired("import")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var req pipeline.Request
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Propose positions, validate an import file and assign lab ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Outcome, error) {
				return p.Run(ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&req.Material, "material", "m", "", "Material class (BIOFLUID, PAXGENE, DNA, CELLS)")
	cmd.Flags().StringVarP(&req.ImportPath, "import", "i", "", "Import CSV file")
	cmd.Flags().BoolVar(&req.InPlace, "in-place", false, "Also overwrite the import file with the assigned lab ids")
	_ = cmd.MarkFlagRequired("import")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Print the report stored for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSession(cmd)
			if err != nil {
				return err
			}
			info, data, err := s.pipeline.StoredReport(cmd.Context(), args[0])
			if err == nil {
				s.log.Debug("report loaded", "key", info.Key, "size", info.Size, "stored", info.LastModified)
				_, err = a.out.Write(data)
			}
			return s.finish(err)
		},
	}
}
