package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete every rank table of a list",
	Long: `Drop all rank tables of the defined group, including the rank-0 item
table. This destroys all ingested data for the group; --force is
required.

Example:
  pml drop --def spending.toml --db spending.db --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		def, err := loadDefinition(cmd)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("drop destroys all data for group %q; re-run with --force", def.Group)
		}

		store, release, err := openAdapter(ctx)
		if err != nil {
			return err
		}
		defer release()

		list, err := def.Build(ctx, store)
		if err != nil {
			return err
		}
		if err := list.DeleteAllTablesAndData(ctx); err != nil {
			return err
		}
		fmt.Printf("Dropped %d tables for group %q\n", list.RankCount()+1, def.Group)
		return nil
	},
}

func init() {
	dropCmd.Flags().Bool("force", false, "confirm destroying all data for the group")
	rootCmd.AddCommand(dropCmd)
}
