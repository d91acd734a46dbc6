package main

import (
	"fmt"
	"os"

	"conjoint/internal"
	"conjoint/internal/config"
	"conjoint/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// appConfig is loaded once by the root command before any subcommand runs.
var appConfig *config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "conjoint",
		Short:         "Conjoint analysis: part-worth estimation, importance and market simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			appConfig = cfg
			internal.DefaultLogger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
			gin.SetMode(cfg.Server.GinMode)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newSimulateCmd(),
		newOptimizeCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)
	return rootCmd
}

// printError writes refusals in full and everything else on one line.
func printError(err error) {
	if appErr, ok := errors.As(err); ok && appErr.IsRefusal() {
		fmt.Fprint(os.Stderr, appErr.Describe())
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
}
