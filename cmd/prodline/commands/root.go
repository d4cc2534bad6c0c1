package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prodline/prodline/pkg/config"
	"github.com/prodline/prodline/pkg/engine"
	"github.com/prodline/prodline/pkg/stores"
	"github.com/prodline/prodline/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	dbPath     string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prodline",
		Short: "Prodline - Manufacturing Execution Engine",
		Long: `Prodline turns incoming sales demand into production work orders.

It aggregates pending sales-order lines into per-product demand batches,
previews raw-material requirements against bills of materials and stock,
and commits batches into a Planned -> InProgress -> Done work-order
lifecycle with merge resolution and idempotent submission.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newBatchesCommand())
	rootCmd.AddCommand(newMaterialsCommand())
	rootCmd.AddCommand(newOrdersCommand())

	return rootCmd
}

// app bundles everything a command needs at runtime.
type app struct {
	cfg    *config.Config
	store  *stores.SQLiteStore
	engine *engine.Engine
	tel    *telemetry.Telemetry
}

// withApp loads configuration, opens the store, wires the engine, runs fn,
// and tears everything down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	if err := tel.StartMetricsServer(); err != nil {
		return err
	}

	// Live log-level reloads while long-running commands are active.
	if configPath != "" {
		watcher := config.NewWatcher(configPath, tel.Logger)
		if err := watcher.Watch(ctx, func(updated *config.Config) {
			tel.Logger.SetLevel(updated.Telemetry.Logging.Level)
		}); err != nil {
			tel.Logger.WithError(err).Warn("Config watcher unavailable")
		}
	}

	store, err := stores.NewSQLiteStore(cfg.StoreConfig())
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng := engine.New(store, tel, cfg.EngineOptions())

	return fn(tel.WithContext(ctx), &app{
		cfg:    cfg,
		store:  store,
		engine: eng,
		tel:    tel,
	})
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
