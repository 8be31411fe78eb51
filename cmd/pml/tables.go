package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/promantle/internal/listdef"
	"github.com/untoldecay/promantle/internal/ui"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Dump the rank tables of a list",
	Long: `Dump every rank table of the defined list, finest rank first.
Rank 0 holds the individual ingested items.

Examples:
  pml tables --def spending.toml --db spending.db
  pml tables --def spending.toml --rank PerHour`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		def, err := loadDefinition(cmd)
		if err != nil {
			return err
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

		rankName, _ := cmd.Flags().GetString("rank")
		n := list.RankCount()
		for rank := 0; rank <= n; rank++ {
			if rankName != "" && !rankMatches(def, rank, rankName) {
				continue
			}
			dump, err := store.DumpRank(ctx, def.Group, rank, n)
			if err != nil {
				return err
			}
			if ui.ShouldUseColor() {
				fmt.Println(ui.RenderDump(dump))
			} else {
				fmt.Print(dump)
			}
			fmt.Println()
		}
		return nil
	},
}

// rankMatches maps a rank name from the definition to its internal
// number; rank 0 answers to "items".
func rankMatches(def *listdef.Definition, rank int, name string) bool {
	if rank == 0 {
		return name == "items"
	}
	return def.Ranks[rank-1].Name == name
}

func init() {
	tablesCmd.Flags().String("rank", "", "dump a single rank by name (\"items\" for rank 0)")
	rootCmd.AddCommand(tablesCmd)
}
