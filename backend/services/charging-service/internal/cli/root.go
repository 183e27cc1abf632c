// Package cli exposes the charging-service commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chargeway/backend/libs/logging"
	appconfig "chargeway/backend/services/charging-service/internal/config"
)

const serviceName = "charging-service"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "EV charging ticket and session service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// bootstrap loads configuration and the logger shared by every command.
func bootstrap() (*appconfig.Config, *zap.Logger, error) {
	if cfgPath != "" {
		if err := os.Setenv("CONFIG_FILE", cfgPath); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(logging.Options{
		Level:       cfg.Log.Level,
		Service:     serviceName,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
