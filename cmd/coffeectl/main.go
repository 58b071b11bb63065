// Command coffeectl runs administrative tasks against the makecoffee database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"makecoffee/internal/config"
	"makecoffee/internal/db"
	applog "makecoffee/internal/log"
)

// openDatabaseFunc connects to and migrates the configured database.
var openDatabaseFunc = func(ctx context.Context) (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	if cfg.Database.UseMock {
		return nil, fmt.Errorf("coffeectl needs a real database; unset DATABASE_USE_MOCK")
	}
	database, err := db.Configure(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applog.Debug(ctx, "database ready")
	return database, nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "coffeectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coffeectl",
		Short:         "Administrative tasks for the makecoffee backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateUserCmd(), newImportIngredientsCmd())
	return root
}
