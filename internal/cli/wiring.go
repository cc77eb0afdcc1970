package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"bioval/internal/blob"
	"bioval/internal/config"
	"bioval/internal/infra/reference/postgres"
	"bioval/internal/infra/reference/sqlite"
	"bioval/internal/logging"
	"bioval/internal/metrics"
	"bioval/internal/pipeline"
	"bioval/internal/reference"
)

// session is everything a subcommand needs for one run.
type session struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *metrics.Recorder
	pipeline *pipeline.Pipeline
}

// loadConfig reads the environment, then applies the flags the user set.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.flags.envFiles...)
	if err != nil {
		return nil, err
	}
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("rules", &cfg.RulesFile, a.flags.rulesFile)
	set("log-level", &cfg.LogLevel, a.flags.logLevel)
	set("log-format", &cfg.LogFormat, a.flags.logFormat)
	set("metrics-file", &cfg.MetricsFile, a.flags.metricsFile)
	if cmd.Flags().Changed("reference-csv") {
		cfg.Reference.Source = config.SourceCSV
		cfg.Reference.CSVPath = a.flags.referenceCSV
	}
	set("reference-source", &cfg.Reference.Source, a.flags.referenceSource)
	set("reference-dsn", &cfg.Reference.DSN, a.flags.referenceDSN)
	set("reference-table", &cfg.Reference.Table, a.flags.referenceTable)
	if cmd.Flags().Changed("blob-root") {
		cfg.Blob.Driver = string(blob.DriverFilesystem)
		cfg.Blob.FSRoot = a.flags.blobRoot
	}
	set("blob-driver", &cfg.Blob.Driver, a.flags.blobDriver)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(a.errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	rt, err := rules.Build()
	if err != nil {
		return nil, err
	}
	supplier, err := newSupplier(cfg.Reference)
	if err != nil {
		return nil, err
	}
	store, err := blob.Open(cmd.Context(), cfg.BlobOptions())
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	rec := metrics.New()
	p, err := pipeline.New(pipeline.Options{
		Runtime:   rt,
		Reference: supplier,
		Store:     store,
		Selector:  newPromptSelector(a.in, a.out),
		Logger:    log.With("env", cfg.Env),
		Metrics:   rec,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("session ready", "reference", cfg.Reference.Source, "blob", store.Driver())
	return &session{cfg: cfg, log: log, metrics: rec, pipeline: p}, nil
}

func newSupplier(cfg config.ReferenceConfig) (reference.Supplier, error) {
	switch cfg.Source {
	case config.SourceREDCap:
		return reference.NewREDCap(cfg.REDCapURL, cfg.REDCapToken,
			reference.WithReportID(cfg.ReportID),
			reference.WithTimeout(cfg.Timeout))
	case config.SourceCSV:
		return reference.CSVFile{Path: cfg.CSVPath}, nil
	case config.SourceSQLite:
		return sqlite.NewSupplier(cfg.DSN, cfg.Table), nil
	case config.SourcePostgres:
		return postgres.NewSupplier(cfg.DSN, cfg.Table), nil
	default:
		return nil, fmt.Errorf("unknown reference source %q", cfg.Source)
	}
}

// finish exports metrics whether or not the run succeeded.
func (s *session) finish(runErr error) error {
	if err := s.metrics.WriteFile(s.cfg.MetricsFile); err != nil {
		s.log.Error("write metrics", "path", s.cfg.MetricsFile, "error", err)
		if runErr == nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return runErr
}

// run executes one pipeline operation inside a session.
func (a *app) run(cmd *cobra.Command, op func(context.Context, *pipeline.Pipeline) (*pipeline.Outcome, error)) error {
	s, err := a.newSession(cmd)
	if err != nil {
		return err
	}
	out, err := op(cmd.Context(), s.pipeline)
	if err == nil {
		printOutcome(a.out, out)
	}
	return s.finish(err)
}
