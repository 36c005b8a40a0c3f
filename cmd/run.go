package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/internal/config"
	"github.com/JoeyJohnson82/ScCrawler/internal/observability"
	"github.com/JoeyJohnson82/ScCrawler/internal/scenario"
)

func newRunCmd() *cobra.Command {
	var runID string

	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Run a crawl scenario and persist its extractions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			path := cfg.Scenario.File
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no scenario given: pass a file argument or set scenario.file")
			}
			if runID == "" {
				runID = cfg.Scenario.RunID
			}

			sc, err := scenario.ParseFile(path)
			if err != nil {
				return err
			}

			comps, err := newComponents(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			runner := scenario.NewRunner(comps.Session,
				scenario.WithRunnerLogger(logger),
				scenario.WithRunID(runID),
				scenario.WithStepTimeout(cfg.Scenario.StepTimeout),
			)

			batch, runErr := runner.Run(ctx, sc)

			// Persist whatever was collected; a failed run's partial batch
			// is still evidence worth keeping.
			if len(batch.Records) > 0 {
				if err := comps.Store.SaveBatch(ctx, batch); err != nil {
					logger.Error("Failed to persist extraction batch",
						zap.String("run_id", batch.RunID), zap.Error(err))
					if runErr == nil {
						return err
					}
				}
			}
			if runErr != nil {
				return runErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records extracted\n",
				batch.RunID, len(batch.Records))
			return nil
		},
	}

	runCmd.Flags().StringVar(&runID, "run-id", "", "override the generated run id")
	return runCmd
}
