// Command alertcast runs the alert monitor daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alertcast/alertcast/internal/config"
	"github.com/alertcast/alertcast/internal/logger"
	"github.com/alertcast/alertcast/internal/monitor"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "alertcast",
	Short: "Monitor civil-alert feeds and drive network media players.",
	Long: `Alertcast ingests the push-stream and polled-history alert feeds,
arbitrates the three alert tiers and announces activations on the configured
playback devices. Tier states are exposed over MQTT and an HTTP status API.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		cfg, warnings, err := config.Load(configPath)
		if err != nil {
			return err
		}

		level, known := logger.ParseLevel(cfg.LogLevel)
		log := logger.New(level)
		defer log.Sync() //nolint:errcheck

		if !known {
			log.Warnw("Unknown log level, using info", "logLevel", cfg.LogLevel)
		}

		for _, warning := range warnings {
			log.Warnw(warning)
		}

		mon, err := monitor.New(cfg, log)
		if err != nil {
			return err
		}

		return mon.Run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename,
		"path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
