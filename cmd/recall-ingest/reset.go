package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the collection and clear the ingest ledger",
		Long: `Drops the search index, deletes every stored entry and clears the
ledger, so the next run re-ingests all files from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				err := errors.New("reset deletes every stored entry; pass --yes to confirm")
				cmd.PrintErrln("error:", err)
				return err
			}
			return runReset(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func runReset(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts)
	if err != nil {
		cmd.PrintErrln("error:", err)
		return err
	}
	defer s.close()

	n, err := s.runtime.Engine.Reset(ctx)
	if err != nil {
		cmd.PrintErrln("error:", err)
		return err //nolint:wrapcheck // engine errors name the collection
	}
	cmd.Printf("Removed %d entries from %s.\n", n, s.runtime.Engine.Info().Name)

	if s.ledger != nil {
		cleared, err := s.ledger.Clear(ctx)
		if err != nil {
			cmd.PrintErrln("error:", err)
			return err //nolint:wrapcheck // already descriptive
		}
		cmd.Printf("Cleared %d ledger entries.\n", cleared)
	}
	return nil
}
