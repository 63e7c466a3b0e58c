// Package cli implements the chores command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/chore-engine/auth"
	"github.com/warp/chore-engine/chores"
	"github.com/warp/chore-engine/config"
	"github.com/warp/chore-engine/store/sqlite"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "chores",
	Short: "Household chore tracker with a points ledger",
	Long: `chores runs the chore tracker server and its maintenance tasks.
Settings come from defaults, then the optional --config TOML file, then
CHORES_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// app is what most commands need: the loaded config, an open store and a
// service bound to it.
type app struct {
	cfg        config.Config
	store      *sqlite.Store
	service    *chores.Service
	dispatcher *chores.Dispatcher
}

func (a *app) Close() error {
	return a.store.Close()
}

// openApp loads config and opens the store. newNotifier may be nil for
// commands that never notify.
func openApp(newNotifier func(config.Config) (chores.Notifier, error)) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	// Flags win over file and environment.
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	hasher, err := auth.NewPINHasher(cfg.Auth.BcryptCost)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	var opts []chores.Option
	if newNotifier != nil {
		notifier, err := newNotifier(cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.dispatcher = chores.NewDispatcher(notifier, store, cfg.Push.Timeout)
		opts = append(opts, chores.WithDispatcher(a.dispatcher))
	}
	a.service = chores.NewService(store, hasher, opts...)
	return a, nil
}
