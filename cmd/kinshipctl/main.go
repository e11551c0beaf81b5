// Command kinshipctl runs maintenance tasks against a kinship database:
// schema migrations and demo data.
package main

import (
	"errors"
	"fmt"
	"os"

	"kinship/internal/config"
	"kinship/internal/database"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// env carries what the subcommands share once the root command has run.
type env struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var envFile string

	root := &cobra.Command{
		Use:          "kinshipctl",
		Short:        "Maintenance tasks for the kinship API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("reading %s: %w", envFile, err)
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the config")

	root.AddCommand(newMigrateCmd(e), newSeedCmd(e))
	return root
}

// openDB connects to the configured database. The caller must close it.
func (e *env) openDB() (*gorm.DB, func(), error) {
	db, err := database.Connect(e.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeFn, nil
}
