// Command pml maintains and inspects pre-aggregated hierarchical lists
// defined by TOML list definitions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/promantle/internal/adapter"
	"github.com/untoldecay/promantle/internal/adapter/postgres"
	"github.com/untoldecay/promantle/internal/adapter/sqlite"
	"github.com/untoldecay/promantle/internal/config"
	"github.com/untoldecay/promantle/internal/listdef"
)

var rootCmd = &cobra.Command{
	Use:   "pml",
	Short: "Pre-aggregated hierarchical list store",
	Long: `pml ingests time-keyed records into a pre-aggregated hierarchical
list and answers point and range queries at any configured granularity.

Lists are described by a TOML definition file (group, ranks, aggregates)
and stored in SQLite (--db / PML_DB) or any PostgreSQL-compatible server
(--dsn / PML_DSN). When both are set, --dsn wins.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			config.Set("db", db)
		}
		if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
			config.Set("dsn", dsn)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	rootCmd.PersistentFlags().String("dsn", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("def", "", "list definition file (TOML)")
	_ = rootCmd.MarkPersistentFlagRequired("def")
}

// openAdapter connects the configured backend. The returned func releases
// the connection pool.
func openAdapter(ctx context.Context) (adapter.TableAdapter, func(), error) {
	if dsn := config.DSN(); dsn != "" {
		a, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	}
	db := config.DBPath()
	if db == "" {
		return nil, nil, fmt.Errorf("no backend configured: set --db/PML_DB or --dsn/PML_DSN")
	}
	a, err := sqlite.New(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return a, func() { _ = a.Close() }, nil
}

func loadDefinition(cmd *cobra.Command) (*listdef.Definition, error) {
	path, _ := cmd.Flags().GetString("def")
	return listdef.Load(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
