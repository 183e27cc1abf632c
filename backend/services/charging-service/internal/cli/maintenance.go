package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/app"
	appconfig "chargeway/backend/services/charging-service/internal/config"
	"chargeway/backend/services/charging-service/internal/password"
	"chargeway/backend/services/charging-service/internal/seed"
	"chargeway/backend/services/charging-service/internal/service"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: withStorage(func(cmd *cobra.Command, _ *appconfig.Config, _ *app.Storage, logger *zap.Logger) error {
		logger.Info("schema is up to date")
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert missing stations and bootstrap the admin account",
	RunE: withStorage(func(cmd *cobra.Command, cfg *appconfig.Config, storage *app.Storage, logger *zap.Logger) error {
		auth := service.NewAuthService(storage.Users, password.NewBcryptHasher(0), logger)
		s := seed.New(storage.Stations, nil, auth, logger)
		n, err := s.Stations(cmd.Context())
		if err != nil {
			return err
		}
		if err := s.Admin(cmd.Context(), app.AdminInput(cfg)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stations\n", n)
		return nil
	}),
}

var backfillCmd = &cobra.Command{
	Use:   "backfill-battery",
	Short: "Fill missing vehicle battery levels and recompute battery tiers",
	RunE: withStorage(func(cmd *cobra.Command, _ *appconfig.Config, storage *app.Storage, logger *zap.Logger) error {
		raw, _ := cmd.Flags().GetString("capacity")
		if !cmd.Flags().Changed("capacity") {
			raw = os.Getenv("BATTERY_CAPACITY_DEFAULT")
		}
		capacity, err := seed.ParseCapacity(raw)
		if err != nil {
			return err
		}

		s := seed.New(nil, storage.Vehicles, nil, logger)
		n, err := s.Battery(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %d vehicles\n", n)

		if capacity == nil {
			return nil
		}
		n, err = s.Capacity(cmd.Context(), capacity)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backfilled capacity for %d vehicles\n", n)
		return nil
	}),
}

func init() {
	backfillCmd.Flags().String("capacity", "", "default battery capacity in kWh for vehicles without one (\"null\" skips; defaults to $BATTERY_CAPACITY_DEFAULT)")
	rootCmd.AddCommand(migrateCmd, seedCmd, backfillCmd)
}

// withStorage opens the configured storage (migrating postgres) around fn.
func withStorage(fn func(cmd *cobra.Command, cfg *appconfig.Config, storage *app.Storage, logger *zap.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		cmd.SetContext(ctx)

		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync() // best-effort flush

		storage, err := app.OpenStorage(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer storage.Close()
		return fn(cmd, cfg, storage, logger)
	}
}
