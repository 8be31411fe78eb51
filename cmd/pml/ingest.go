package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/untoldecay/promantle/internal/config"
	"github.com/untoldecay/promantle/internal/listdef"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.jsonl]",
	Short: "Ingest JSONL records into a list",
	Long: `Read JSONL records from a file (or stdin) and write each through the
rank walk. Records look like:

  {"at": "2020-05-05T10:11:12Z", "spent": 5.1}

"at" is the key; every other field must be numeric. The write path is
single-writer: a file lock next to the database (or in the user cache
directory for a server backend) serializes concurrent ingests.

Examples:
  pml ingest --def spending.toml --db spending.db fixtures.jsonl
  cat fixtures.jsonl | pml ingest --def spending.toml --db spending.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		def, err := loadDefinition(cmd)
		if err != nil {
			return err
		}

		unlock, err := acquireWriterLock(def.Group)
		if err != nil {
			return err
		}
		defer unlock()

		store, release, err := openAdapter(ctx)
		if err != nil {
			return err
		}
		defer release()

		list, err := def.Build(ctx, store)
		if err != nil {
			return err
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		written, scanned, lineNo := 0, 0, 0
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lineNo++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			rec, err := listdef.ParseRecord(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			n, err := list.WriteItem(ctx, rec)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			written++
			scanned += n
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		fmt.Printf("Ingested %d records (%d child rows scanned)\n", written, scanned)
		return nil
	},
}

// acquireWriterLock serializes cooperating single writers on one machine.
// Lock placement: beside the SQLite file, or under the user cache dir
// keyed by group for server backends.
func acquireWriterLock(group string) (func(), error) {
	var path string
	if db := config.DBPath(); db != "" && config.DSN() == "" {
		path = db + ".lock"
	} else {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		dir := filepath.Join(cacheDir, "pml")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
		path = filepath.Join(dir, group+".lock")
	}

	lock := flock.New(path)
	deadline := time.Now().Add(config.LockTimeout())
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire writer lock %s: %w", path, err)
		}
		if ok {
			return func() { _ = lock.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another ingest holds %s (waited %s)", path, config.LockTimeout())
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
