package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/app"
	"github.com/kailas-cloud/recall/internal/config"
	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/ledger"
	logpkg "github.com/kailas-cloud/recall/internal/logger"
	"github.com/kailas-cloud/recall/internal/usecase/ingest"
	"github.com/kailas-cloud/recall/internal/version"
)

type rootOptions struct {
	configPath  string
	verbose     bool
	all         bool
	dates       []string
	force       bool
	metricsPort string
}

// session is everything a command needs after config and connections are up.
type session struct {
	cfg     config.Config
	logger  *zap.Logger
	runtime *app.Runtime
	ledger  *ledger.Ledger
	service *ingest.Service
	metrics *http.Server
}

func (s *session) close() {
	if s.metrics != nil {
		stopMetrics(s.metrics)
	}
	if s.ledger != nil {
		_ = s.ledger.Close()
	}
	if s.runtime != nil {
		s.runtime.Close()
	}
	_ = s.logger.Sync()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "recall-ingest",
		Short: "Index conversation logs into the recall collection",
		Long: `Reads <log_dir>/<YYYY-MM>/<YYYY-MM-DD>.jsonl files, drops streaming
snapshots and short lines, collapses duplicates and upserts the rest in
batches. Without flags only today's file is ingested.`,
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: config/<ENV>.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.metricsPort, "metrics-port", "", "serve Prometheus metrics on this port (disabled when empty)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "ingest every .jsonl file under the log directory")
	cmd.Flags().StringSliceVar(&opts.dates, "date", nil, "ingest specific days (YYYY-MM-DD), repeatable")
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-ingest files the ledger reports as unchanged")
	cmd.MarkFlagsMutuallyExclusive("all", "date")

	cmd.AddCommand(newWatchCmd(opts), newResetCmd(opts))
	return cmd
}

func runIngest(cmd *cobra.Command, opts *rootOptions) error {
	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		cmd.PrintErrln("error:", err)
		return err
	}
	defer s.close()

	report, err := s.service.Run(cmd.Context(), ingest.Selection{All: opts.all, Dates: opts.dates, Force: opts.force})
	printReport(cmd, &report)
	if errors.Is(err, domain.ErrNoSourceFiles) {
		cmd.Println("No .jsonl files found.")
		return nil
	}
	if err != nil {
		cmd.PrintErrln("error:", err)
		return err
	}
	return nil
}

func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logpkg.NewCLI(opts.verbose)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	s := &session{cfg: cfg, logger: logger}
	if opts.metricsPort != "" {
		s.metrics = serveMetrics(opts.metricsPort, logger)
	}

	s.runtime, err = app.Open(ctx, &s.cfg, logger)
	if err != nil {
		s.close()
		return nil, err
	}

	s.service = ingest.New(s.runtime.Engine, ingest.Config{
		LogDir:    cfg.Ingest.LogDir,
		BatchSize: cfg.Ingest.BatchSize,
		Source:    cfg.Ingest.Source,
	}).WithLogger(logger.Named("ingest"))

	// An in-process collection starts empty every run, so a ledger would
	// skip files whose documents are already gone.
	if cfg.Ingest.LedgerPath != "" && cfg.Database.Driver != config.DriverMemory {
		l, err := ledger.Open(cfg.Ingest.LedgerPath, ledger.WithTarget(ledgerTarget(s.runtime.Engine.Info())))
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		s.ledger = l
		s.service.WithLedger(l)
	}
	return s, nil
}

// ledgerTarget names the store and collection a ledger entry refers to.
func ledgerTarget(info domain.CollectionInfo) string {
	return strings.TrimSuffix(info.Location, "/") + "/" + info.Name
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path) //nolint:wrapcheck // already descriptive
	}
	return config.Load(config.GetEnv()) //nolint:wrapcheck // already descriptive
}

func printReport(cmd *cobra.Command, r *ingest.Report) {
	for i := range r.Files {
		f := &r.Files[i]
		switch f.Status {
		case ingest.StatusIngested:
			cmd.Printf("%s: %d entries in %d batches (%d dropped, %d duplicates)\n",
				f.Day, f.Documents, f.Batches, f.Dropped, f.Duplicates)
		case ingest.StatusEmpty:
			cmd.Printf("%s: no valid entries, skipped\n", f.Day)
		case ingest.StatusUnchanged:
			cmd.Printf("%s: unchanged since last ingest, skipped\n", f.Day)
		}
	}
	if len(r.Files) > 0 {
		cmd.Printf("Done. %d entries ingested, collection now holds %d.\n", r.Total, r.CollectionCount)
	}
}
