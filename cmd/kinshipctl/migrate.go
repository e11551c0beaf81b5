package main

import (
	"fmt"

	"kinship/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := e.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.MigrateUp(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.IsProduction() && steps <= 0 {
				return fmt.Errorf("refusing to roll back every migration in %q; pass --steps", e.cfg.Env)
			}
			db, closeDB, err := e.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.MigrateDown(db, steps); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rollback complete")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back; 0 rolls back all")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied and latest migration versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := e.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			st, err := database.GetMigrationStatus(db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %d\n", st.Version)
			fmt.Fprintf(out, "latest:  %d\n", st.Latest)
			fmt.Fprintf(out, "pending: %d\n", st.Pending)
			if st.Dirty {
				fmt.Fprintln(out, "dirty:   true (fix the failed migration, then force the version)")
			}
			return nil
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
