package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-ingest log files as the logger appends to them",
		Long: `Watches the log directory tree and re-ingests a .jsonl file once writes
to it settle. Unchanged files are skipped through the ledger; re-ingesting a
changed file is idempotent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}
}

func runWatch(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts)
	if err != nil {
		cmd.PrintErrln("error:", err)
		return err
	}
	defer s.close()

	log := s.logger.Named("watch")
	w := watcher.New(s.cfg.Ingest.LogDir,
		watcher.WithDebounce(s.cfg.Ingest.Debounce()),
		watcher.WithLogger(log),
	)

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", s.cfg.Ingest.LogDir)
	err = w.Run(ctx, func(ctx context.Context, path string) error {
		fr, err := s.service.IngestChanged(ctx, path)
		if err != nil {
			return err //nolint:wrapcheck // logged by the watcher with the path
		}
		if fr.Documents > 0 {
			log.Info("file re-ingested", zap.String("day", fr.Day), zap.Int("documents", fr.Documents))
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		cmd.PrintErrln("error:", err)
		return err //nolint:wrapcheck // already wrapped by the watcher
	}
	return nil
}
