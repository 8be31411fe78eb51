// Package postgres implements the rank-table adapter for PostgreSQL and
// compatible backends using jackc/pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/untoldecay/promantle/internal/adapter"
	"github.com/untoldecay/promantle/internal/debug"
)

// Adapter implements adapter.TableAdapter over a pgx connection pool.
// Each operation acquires a connection from the pool and releases it on
// return, so callers never hold a connection between engine steps.
type Adapter struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]bool
}

// New connects to the PostgreSQL-compatible server at connString and
// verifies the connection.
func New(ctx context.Context, connString string) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return &Adapter{pool: pool, ensured: make(map[string]bool)}, nil
}

// NewWithPool wraps an existing pool (for tests). The caller keeps
// ownership of the pool.
func NewWithPool(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool, ensured: make(map[string]bool)}
}

// Close releases the connection pool.
func (a *Adapter) Close() {
	a.pool.Close()
}

func (a *Adapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []adapter.AggregateColumn) (bool, error) {
	name := adapter.TableName(group, rank, rankCount)

	a.mu.Lock()
	known := a.ensured[name]
	a.mu.Unlock()

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	exists := known
	if !known {
		var reg *uint32
		if err := conn.QueryRow(ctx, `SELECT to_regclass($1)::oid`, name).Scan(&reg); err != nil {
			return false, fmt.Errorf("failed to check table %s: %w", name, err)
		}
		exists = reg != nil
	}

	if !exists {
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
		debug.Logf("postgres: creating table %s", name)
		if _, err := conn.Exec(ctx, sb.String()); err != nil {
			return false, fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_parent ON %s(parent_position)`, name, name)
	if _, err := conn.Exec(ctx, idx); err != nil {
		return false, fmt.Errorf("failed to index table %s: %w", name, err)
	}

	a.mu.Lock()
	a.ensured[name] = true
	a.mu.Unlock()
	return !exists, nil
}

func (a *Adapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition, position, count int64, value, lower, upper any) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	name := adapter.TableName(group, rank, rankCount)
	cc, vc := adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate)
	stmt := fmt.Sprintf(`
		INSERT INTO %s (position, parent_position, lower_bound, upper_bound, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (position) DO UPDATE SET
			parent_position = excluded.parent_position,
			lower_bound = excluded.lower_bound,
			upper_bound = excluded.upper_bound,
			%s = excluded.%s,
			%s = excluded.%s
	`, name, cc, vc, cc, cc, vc, vc)

	if _, err := conn.Exec(ctx, stmt, position, parentPosition, lower, upper, count, value); err != nil {
		return fmt.Errorf("failed to upsert %s position %d: %w", name, position, err)
	}
	return nil
}

func (a *Adapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregate string, position int64) (*adapter.Bucket, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	name := adapter.TableName(group, rank, rankCount)
	stmt := fmt.Sprintf(`SELECT position, parent_position, %s, %s, lower_bound, upper_bound FROM %s WHERE position = $1`,
		adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate), name)

	b, err := scanBucket(conn.QueryRow(ctx, stmt, position))
	if errors.Is(err, pgx.ErrNoRows) {
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
		WHERE position >= $1 AND position <= $2 ORDER BY position ASC`,
		adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate), name)
	return a.queryBuckets(ctx, name, stmt, start, end)
}

func (a *Adapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition int64) ([]adapter.Bucket, error) {
	name := adapter.TableName(group, rank, rankCount)
	stmt := fmt.Sprintf(`SELECT position, parent_position, %s, %s, lower_bound, upper_bound FROM %s
		WHERE parent_position = $1 ORDER BY position ASC`,
		adapter.CountColumn(aggregate), adapter.ValueColumn(aggregate), name)
	return a.queryBuckets(ctx, name, stmt, parentPosition)
}

func (a *Adapter) queryBuckets(ctx context.Context, name, stmt string, args ...any) ([]adapter.Bucket, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, stmt, args...)
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

func scanBucket(r pgx.Row) (*adapter.Bucket, error) {
	var b adapter.Bucket
	var parent, count *int64
	if err := r.Scan(&b.Position, &parent, &count, &b.Value, &b.Lower, &b.Upper); err != nil {
		return nil, err
	}
	if parent != nil {
		b.ParentPosition = *parent
	}
	if count != nil {
		b.Count = *count
	}
	return &b, nil
}

func (a *Adapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) int64 {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return 0
	}
	defer conn.Release()

	name := adapter.TableName(group, rank, rankCount)
	var max *int64
	if err := conn.QueryRow(ctx, fmt.Sprintf(`SELECT MAX(position) FROM %s`, name)).Scan(&max); err != nil {
		return 0
	}
	if max == nil {
		return 0
	}
	return *max
}

func (a *Adapter) DumpRank(ctx context.Context, group string, rank, rankCount int) (string, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	name := adapter.TableName(group, rank, rankCount)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY position ASC`, name))
	if err != nil {
		return "", fmt.Errorf("failed to dump %s: %w", name, err)
	}
	defer rows.Close()

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('\n')
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteByte('\n')

	n := 0
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return "", fmt.Errorf("failed to scan %s row: %w", name, err)
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
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
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	name := adapter.TableName(group, rank, rankCount)
	debug.Logf("postgres: dropping table %s", name)
	if _, err := conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}

	a.mu.Lock()
	delete(a.ensured, name)
	a.mu.Unlock()
	return nil
}
