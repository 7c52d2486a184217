package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/podcheck/internal/repository"
)

func newOutcomesCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "outcomes <run-id>",
		Short: "List the persisted results of a run",
		Long: `Checks the outcome database (RESULTS_DB_URL) and prints one line per
document stored for the given run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			cfg, err := gf.loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("RESULTS_DB_URL is required")
			}
			logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)

			ctx := cmd.Context()
			db, err := repository.Open(ctx, repository.Config{
				DSN:         cfg.Database.DSN,
				MaxConns:    cfg.Database.MaxConns,
				MinConns:    cfg.Database.MinConns,
				DialTimeout: cfg.Database.DialTimeout,
			}, logger)
			if err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			store, err := repository.NewOutcomeRepository(ctx, db, logger)
			if err != nil {
				db.Close(logger)
				return err
			}
			defer store.Close()

			rows, err := store.ListByRun(ctx, runID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tSTATUS\tENGINE\tDECISION\tSCORE\tREASON")
			for _, r := range rows {
				score := "-"
				if r.DecisionScore != nil {
					score = fmt.Sprintf("%.4f", *r.DecisionScore)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Filename, r.Status, dash(r.EngineUsed), dash(r.Decision), score, dash(r.SkipReason))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			cmd.Printf("%d documents in run %s\n", len(rows), runID)
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
