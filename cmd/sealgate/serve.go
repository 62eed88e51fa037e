package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/sealgate"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long:  `Starts the authenticated container API along with /health, /metrics and /openapi.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := sealgate.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer gw.Close()

		return gw.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address (overrides http.addr)")
}
