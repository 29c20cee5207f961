package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			m := cliCtx.NewMigrator()
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			m := cliCtx.NewMigrator()
			if err := m.Down(steps); err != nil {
				return err
			}
			return printVersion(cmd, m)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return printVersion(cmd, cliCtx.NewMigrator())
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Status()
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("schema at version %d", version)
	if dirty {
		msg += " (dirty: a migration failed part way, fix it and force the version)"
	}
	PrintSuccess(cmd, msg)
	return nil
}
