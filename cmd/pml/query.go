package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query an aggregate over a key range",
	Long: `Query one aggregate at one rank over a key range. By default prints
just the combined value per occupied bucket; --points adds counts and
observed key bounds.

Examples:
  pml query --def spending.toml --agg Spent --rank PerHour \
      --from 2020-01-01T00:00:00Z --to 2021-01-01T00:00:00Z
  pml query --def spending.toml --agg Spent --rank PerDay --points ...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		def, err := loadDefinition(cmd)
		if err != nil {
			return err
		}
		aggName, _ := cmd.Flags().GetString("agg")
		rankName, _ := cmd.Flags().GetString("rank")
		from, err := parseTimeFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := parseTimeFlag(cmd, "to")
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

		points, _ := cmd.Flags().GetBool("points")
		if points {
			buckets, err := list.ReadPointsOverRange(ctx, aggName, rankName, from, to)
			if err != nil {
				return err
			}
			for _, b := range buckets {
				fmt.Printf("%d\t%v\tcount=%d\t%s .. %s\n",
					b.Position, b.Value, b.Count,
					b.Lower.Format(time.RFC3339), b.Upper.Format(time.RFC3339))
			}
			return nil
		}

		values, err := list.ReadAggregateRange(ctx, aggName, rankName, from, to)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Printf("%v\n", v)
		}
		return nil
	},
}

func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func init() {
	queryCmd.Flags().String("agg", "", "aggregate name")
	queryCmd.Flags().String("rank", "", "rank name")
	queryCmd.Flags().String("from", "", "range start (RFC3339)")
	queryCmd.Flags().String("to", "", "range end (RFC3339)")
	queryCmd.Flags().Bool("points", false, "print counts and key bounds per bucket")
	_ = queryCmd.MarkFlagRequired("agg")
	_ = queryCmd.MarkFlagRequired("rank")
	_ = queryCmd.MarkFlagRequired("from")
	_ = queryCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(queryCmd)
}
