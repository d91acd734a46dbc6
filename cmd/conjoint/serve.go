package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"conjoint/internal"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port, uiPort string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API and the run browser",
		Long: `Serve the analysis API (PORT) and the HTML run browser (UI_PORT) until
interrupted. Without DATABASE_URL runs are kept in memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				appConfig.Server.Port = port
			}
			if uiPort != "" {
				appConfig.Server.UIPort = uiPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := openContainer(ctx, true)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			internal.DefaultLogger.Info("[Serve] api on :%s, ui on :%s", appConfig.Server.Port, appConfig.Server.UIPort)
			return c.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "API port; overrides PORT")
	cmd.Flags().StringVar(&uiPort, "ui-port", "", "Run browser port; overrides UI_PORT")

	return cmd
}
