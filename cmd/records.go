package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JoeyJohnson82/ScCrawler/internal/config"
	"github.com/JoeyJohnson82/ScCrawler/internal/observability"
)

func newRecordsCmd() *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records <run-id>",
		Short: "Print the extraction records of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()
			logger := observability.GetLogger()

			st := &components{}
			if err := st.buildStore(ctx, cfg, logger); err != nil {
				return err
			}
			defer st.Shutdown()

			records, err := st.Store.RecordsByRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load records for run '%s': %w", args[0], err)
			}
			if len(records) == 0 {
				return fmt.Errorf("no records stored for run '%s'", args[0])
			}

			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to serialize records: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return recordsCmd
}
