// Package memory provides an in-memory TableAdapter for tests and
// ephemeral stores. Rows live in process memory and are lost on exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/untoldecay/promantle/internal/adapter"
)

// Adapter implements adapter.TableAdapter over in-process maps.
// Safe for concurrent readers alongside a single writer.
type Adapter struct {
	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	keyType string
	columns []adapter.AggregateColumn
	rows    map[int64]*row
}

type row struct {
	position int64
	parent   int64
	lower    any
	upper    any
	counts   map[string]int64
	values   map[string]any
}

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{tables: make(map[string]*table)}
}

func (a *Adapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []adapter.AggregateColumn) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := adapter.TableName(group, rank, rankCount)
	if _, ok := a.tables[name]; ok {
		return false, nil
	}
	cols := make([]adapter.AggregateColumn, len(aggregates))
	for i, c := range aggregates {
		cols[i] = adapter.AggregateColumn{Name: adapter.Sanitize(c.Name), StorageType: c.StorageType}
	}
	a.tables[name] = &table{
		keyType: keyType,
		columns: cols,
		rows:    make(map[int64]*row),
	}
	return true, nil
}

// lookup finds the table and verifies the aggregate column exists, mirroring
// the "no such column" failure a SQL backend would produce.
func (a *Adapter) lookup(group string, rank, rankCount int, aggregate string) (*table, string, error) {
	name := adapter.TableName(group, rank, rankCount)
	t, ok := a.tables[name]
	if !ok {
		return nil, "", fmt.Errorf("no such table: %s", name)
	}
	col := adapter.Sanitize(aggregate)
	for _, c := range t.columns {
		if c.Name == col {
			return t, col, nil
		}
	}
	return nil, "", fmt.Errorf("no such column: %s in table %s", adapter.ValueColumn(aggregate), name)
}

func (a *Adapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition, position, count int64, value, lower, upper any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, col, err := a.lookup(group, rank, rankCount, aggregate)
	if err != nil {
		return err
	}
	r, ok := t.rows[position]
	if !ok {
		r = &row{
			position: position,
			counts:   make(map[string]int64),
			values:   make(map[string]any),
		}
		t.rows[position] = r
	}
	r.parent = parentPosition
	r.lower = lower
	r.upper = upper
	r.counts[col] = count
	r.values[col] = value
	return nil
}

func (a *Adapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregate string, position int64) (*adapter.Bucket, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, col, err := a.lookup(group, rank, rankCount, aggregate)
	if err != nil {
		return nil, err
	}
	r, ok := t.rows[position]
	if !ok {
		return nil, adapter.ErrRowNotFound
	}
	b := bucketFor(r, col)
	return &b, nil
}

func (a *Adapter) ReadRange(ctx context.Context, group string, rank, rankCount int, aggregate string, start, end int64) ([]adapter.Bucket, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, col, err := a.lookup(group, rank, rankCount, aggregate)
	if err != nil {
		return nil, err
	}
	return t.collect(col, func(r *row) bool {
		return r.position >= start && r.position <= end
	}), nil
}

func (a *Adapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition int64) ([]adapter.Bucket, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, col, err := a.lookup(group, rank, rankCount, aggregate)
	if err != nil {
		return nil, err
	}
	return t.collect(col, func(r *row) bool {
		return r.parent == parentPosition
	}), nil
}

func (a *Adapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.tables[adapter.TableName(group, rank, rankCount)]
	if !ok {
		return 0
	}
	var max int64
	for pos := range t.rows {
		if pos > max {
			max = pos
		}
	}
	return max
}

func (a *Adapter) DumpRank(ctx context.Context, group string, rank, rankCount int) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	name := adapter.TableName(group, rank, rankCount)
	t, ok := a.tables[name]
	if !ok {
		return "", fmt.Errorf("no such table: %s", name)
	}

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString("\nposition\tparent_position\tlower_bound\tupper_bound")
	for _, c := range t.columns {
		fmt.Fprintf(&sb, "\t%s_count\t%s_value", c.Name, c.Name)
	}
	sb.WriteByte('\n')

	positions := make([]int64, 0, len(t.rows))
	for pos := range t.rows {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	for _, pos := range positions {
		r := t.rows[pos]
		fmt.Fprintf(&sb, "%d\t%d\t%v\t%v", r.position, r.parent, r.lower, r.upper)
		for _, c := range t.columns {
			fmt.Fprintf(&sb, "\t%d\t%v", r.counts[c.Name], r.values[c.Name])
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "(%d rows)\n", len(positions))
	return sb.String(), nil
}

func (a *Adapter) DropTable(ctx context.Context, group string, rank, rankCount int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.tables, adapter.TableName(group, rank, rankCount))
	return nil
}

func (t *table) collect(col string, keep func(*row) bool) []adapter.Bucket {
	var out []adapter.Bucket
	for _, r := range t.rows {
		if keep(r) {
			out = append(out, bucketFor(r, col))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func bucketFor(r *row, col string) adapter.Bucket {
	return adapter.Bucket{
		Position:       r.position,
		ParentPosition: r.parent,
		Count:          r.counts[col],
		Value:          r.values[col],
		Lower:          r.lower,
		Upper:          r.upper,
	}
}
