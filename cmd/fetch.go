package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/crawl"
	"github.com/JoeyJohnson82/ScCrawler/internal/config"
	"github.com/JoeyJohnson82/ScCrawler/internal/observability"
)

func newFetchCmd() *cobra.Command {
	var harPath string

	fetchCmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a single page and report what loaded",
		Long:  `Navigates the configured engine to one URL and prints the final address and page title. With --har, the captured network traffic is written as a HAR archive (htmldom backend only).`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()
			logger := observability.GetLogger()

			if harPath != "" {
				cfg.Engine.CaptureTraffic = true
			}

			comps, err := newComponents(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			session := comps.Session
			var title string
			err = session.NavigateTo(args[0]).Do(ctx, func(ctx context.Context) error {
				node, err := session.From(crawl.Container(crawl.ByPath("//head/title")))
				if err != nil {
					if errors.Is(err, crawl.ErrNodeNotFound) {
						return nil
					}
					return err
				}
				title = strings.TrimSpace(htmlquery.InnerText(node))
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", session.CurrentURL())
			if title != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "title: %s\n", title)
			}

			if harPath != "" {
				if comps.HTMLEngine == nil {
					return fmt.Errorf("--har requires the htmldom engine backend")
				}
				har := comps.HTMLEngine.HAR()
				data, err := json.MarshalIndent(har, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to serialize HAR: %w", err)
				}
				if err := os.WriteFile(harPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write HAR file '%s': %w", harPath, err)
				}
				logger.Info("Wrote traffic archive", zap.String("path", harPath))
				fmt.Fprintf(cmd.OutOrStdout(), "har: %s\n", harPath)
			}
			return nil
		},
	}

	fetchCmd.Flags().StringVar(&harPath, "har", "", "write captured traffic to this HAR file")
	return fetchCmd
}
