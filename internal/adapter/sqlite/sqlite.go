// Package sqlite implements the rank-table adapter over SQLite using the
// ncruces/go-sqlite3 driver (pure Go, wazero-backed).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/untoldecay/promantle/internal/adapter"
	"github.com/untoldecay/promantle/internal/debug"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Adapter implements adapter.TableAdapter over a SQLite database file.
// Each operation checks out a dedicated connection from the pool and
// releases it before returning.
type Adapter struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool // tables verified to exist this process
}

// New opens (or creates) the SQLite database at dbPath. Pass ":memory:"
// for an ephemeral store. WAL mode and a busy timeout are applied so a
// single writer can coexist with concurrent readers.
func New(ctx context.Context, dbPath string) (*Adapter, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)&_pragma=synchronous(normal)"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// A second pooled connection would see a different empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Adapter{db: db, ensured: make(map[string]bool)}, nil
}

// Close releases the underlying connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []adapter.AggregateColumn) (bool, error) {
	name := adapter.TableName(group, rank, rankCount)

	a.mu.Lock()
	known := a.ensured[name]
	a.mu.Unlock()

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	exists := known
	if !known {
		var one int
		err = conn.QueryRowContext(ctx,
			`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&one)
		switch {
		case err == nil:
			exists = true
		case errors.Is(err, sql.ErrNoRows):
			exists = false
		default:
			return false, fmt.Errorf("failed to check table %s: %w", name, err)
		}
	}

	if !exists {
		ddl := buildCreateTable(name, keyType, aggregates)
		debug.Logf("sqlite: creating table %s", name)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return false, fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}
	// The parent_position index is outside the CREATE TABLE so it also
	// appears on tables created before this adapter version.
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_parent ON %s(parent_position)`, name, name)
	if _, err := conn.ExecContext(ctx, idx); err != nil {
		return false, fmt.Errorf("failed to index table %s: %w", name, err)
	}

	a.mu.Lock()
	a.ensured[name] = true
	a.mu.Unlock()
	return !exists, nil
}

func buildCreateTable(name, keyType string, aggregates []adapter.AggregateColumn) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", name)
	sb.WriteString("    position INT8 PRIMARY KEY NOT NULL,\n")
	sb.WriteString("    parent_position INT8,\n")
	fmt.Fprintf(&sb, "    lower_bound %s,\n", adapter.SanitizeType(keyType))
	fmt.Fprintf(&sb, "    upper_bound %s", adapter.SanitizeType(keyType))
	for _, c := range aggregates {
		col := adapter.Sanitize(c.Name)
		fmt.Fprintf(&sb, ",\n    %s_count INT8", col)
		fmt.Fprintf(&sb, ",\n    %s_value %s", col, adapter.SanitizeType(c.StorageType))
	}
	sb.WriteString("\n)")
	return sb.String()
}

func (a *Adapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition, position, count int64, value, lower, upper any) error {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	name := adapter.TableName(group, rank, rankCount)
	cc, vc := adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate)
	stmt := fmt.Sprintf(`
		INSERT INTO %s (position, parent_position, lower_bound, upper_bound, %s, %s)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(position) DO UPDATE SET
			parent_position = excluded.parent_position,
			lower_bound = excluded.lower_bound,
			upper_bound = excluded.upper_bound,
			%s = excluded.%s,
			%s = excluded.%s
	`, name, cc, vc, cc, cc, vc, vc)

	if _, err := conn.ExecContext(ctx, stmt, position, parentPosition, lower, upper, count, value); err != nil {
		return fmt.Errorf("failed to upsert %s position %d: %w", name, position, err)
	}
	return nil
}

func (a *Adapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregate string, position int64) (*adapter.Bucket, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	name := adapter.TableName(group, rank, rankCount)
	stmt := fmt.Sprintf(`SELECT position, parent_position, %s, %s, lower_bound, upper_bound FROM %s WHERE position = ?`,
		adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate), name)

	b, err := scanBucket(conn.QueryRowContext(ctx, stmt, position))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapter.ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s position %d: %w", name, position, err)
	}
	return b, nil
}

func (a *Adapter) ReadRange(ctx context.Context, group string, rank, rankCount int, aggregate string, start, end int64) ([]adapter.Bucket, error) {
	name := adapter.TableName(group, rank, rankCount)
	stmt := fmt.Sprintf(`SELECT position, parent_position, %s, %s, lower_bound, upper_bound FROM %s
		WHERE position >= ? AND position <= ? ORDER BY position ASC`,
		adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate), name)
	return a.queryBuckets(ctx, name, stmt, start, end)
}

func (a *Adapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition int64) ([]adapter.Bucket, error) {
	name := adapter.TableName(group, rank, rankCount)
	stmt := fmt.Sprintf(`SELECT position, parent_position, %s, %s, lower_bound, upper_bound FROM %s
		WHERE parent_position = ? ORDER BY position ASC`,
		adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate), name)
	return a.queryBuckets(ctx, name, stmt, parentPosition)
}

func (a *Adapter) queryBuckets(ctx context.Context, name, stmt string, args ...any) ([]adapter.Bucket, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()

	var out []adapter.Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", name, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", name, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(r rowScanner) (*adapter.Bucket, error) {
	var b adapter.Bucket
	var parent, count sql.NullInt64
	if err := r.Scan(&b.Position, &parent, &count, &b.Value, &b.Lower, &b.Upper); err != nil {
		return nil, err
	}
	b.ParentPosition = parent.Int64
	b.Count = count.Int64
	return &b, nil
}

func (a *Adapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) int64 {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return 0
	}
	defer conn.Close()

	name := adapter.TableName(group, rank, rankCount)
	var max sql.NullInt64
	stmt := fmt.Sprintf(`SELECT MAX(position) FROM %s`, name)
	if err := conn.QueryRowContext(ctx, stmt).Scan(&max); err != nil {
		// Missing table or empty result both mean "start from zero".
		return 0
	}
	return max.Int64
}

func (a *Adapter) DumpRank(ctx context.Context, group string, rank, rankCount int) (string, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	name := adapter.TableName(group, rank, rankCount)
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY position ASC`, name))
	if err != nil {
		return "", fmt.Errorf("failed to dump %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('\n')
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteByte('\n')

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("failed to scan %s row: %w", name, err)
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			parts[i] = fmt.Sprintf("%v", v)
		}
		sb.WriteString(strings.Join(parts, "\t"))
		sb.WriteByte('\n')
		n++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to iterate %s: %w", name, err)
	}
	fmt.Fprintf(&sb, "(%d rows)\n", n)
	return sb.String(), nil
}

func (a *Adapter) DropTable(ctx context.Context, group string, rank, rankCount int) error {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	name := adapter.TableName(group, rank, rankCount)
	debug.Logf("sqlite: dropping table %s", name)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}

	a.mu.Lock()
	delete(a.ensured, name)
	a.mu.Unlock()
	return nil
}
