package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JoeyJohnson82/ScCrawler/internal/config"
	"github.com/JoeyJohnson82/ScCrawler/internal/observability"
)

// Version is stamped by the release build; the default marks dev builds.
var Version = "0.0.0-dev"

var cfgFile string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "sccrawler",
	Short:   "ScCrawler is a scoped navigation and scraping engine.",
	Long:    `ScCrawler runs declarative crawl scenarios: navigate to a page, resolve elements relative to the current scope, act on them, and recurse into children, collecting extracted fields along the way.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load a .env file if one is present, before viper binds the
		// environment.
		_ = godotenv.Load()

		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}
		if err := config.Load(viper.GetViper()); err != nil {
			return err
		}

		cfg := config.Get()
		observability.InitializeLogger(cfg.Logger)
		logger := observability.GetLogger()
		logger.Info("Starting ScCrawler", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command. It accepts a context passed from main.go for
// graceful shutdown.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			// A canceled context is an expected shutdown, not a failure.
			if ctx.Err() == nil {
				logger.Error("Command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newRecordsCmd())
}

// initializeConfig reads in the config file and environment variables.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SCCRAWLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The Postgres URL usually arrives through the environment rather than
	// the config file; bind both the structured and the short name.
	_ = viper.BindEnv("store.postgres_url", "SCCRAWLER_STORE_POSTGRES_URL", "SCCRAWLER_POSTGRES_URL")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and environment carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
