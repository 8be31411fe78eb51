// Package trilist implements a pre-aggregated hierarchical store: a chain
// of progressively coarser rank tables over one backing table adapter,
// kept consistent on every write by re-folding each parent bucket from the
// rank below it.
package trilist

import (
	"context"
	"fmt"

	"github.com/untoldecay/promantle/internal/adapter"
	"github.com/untoldecay/promantle/internal/debug"
)

// TriangularList maintains N rank tables plus the implicit rank-0 table of
// individual items for one group. V is the ingested item type, K the
// orderable key type.
//
// The list is single-writer cooperative: WriteItem runs the whole
// rank walk on the caller's goroutine and the recompute is not wrapped in
// a transaction, so concurrent writers against the same group produce
// undefined aggregate state. Readers are safe alongside one writer but may
// observe a parent rank briefly behind its children.
type TriangularList[V any, K any] struct {
	group   string
	storage adapter.TableAdapter

	keyFn     func(V) K
	minMax    func(K, K) (K, K)
	keyType   string
	keyDecode func(any) (K, error)

	ranks     []Rank[K]      // ranks[0] is internal rank 1 (finest)
	rankIndex map[string]int // name -> internal rank number 1..N

	aggs     map[string]*Aggregate[V]
	aggOrder []string

	nextZero int64 // next rank-0 position; the only mutable engine state
	deleted  bool
}

type listConfig[V any, K any] struct {
	group     string
	storage   adapter.TableAdapter
	keyFn     func(V) K
	minMax    func(K, K) (K, K)
	keyType   string
	keyDecode func(any) (K, error)
	ranks     []Rank[K]
	aggs      []Aggregate[V]
}

func newList[V any, K any](ctx context.Context, cfg listConfig[V, K]) (*TriangularList[V, K], error) {
	l := &TriangularList[V, K]{
		group:     cfg.group,
		storage:   cfg.storage,
		keyFn:     cfg.keyFn,
		minMax:    cfg.minMax,
		keyType:   cfg.keyType,
		keyDecode: cfg.keyDecode,
		ranks:     cfg.ranks,
		rankIndex: make(map[string]int, len(cfg.ranks)),
		aggs:      make(map[string]*Aggregate[V], len(cfg.aggs)),
	}
	for i, r := range cfg.ranks {
		l.rankIndex[r.Name] = i + 1
	}
	for i := range cfg.aggs {
		agg := cfg.aggs[i]
		l.aggs[agg.name] = &agg
		l.aggOrder = append(l.aggOrder, agg.name)
	}

	columns := make([]adapter.AggregateColumn, len(cfg.aggs))
	for i, a := range cfg.aggs {
		columns[i] = adapter.AggregateColumn{Name: a.name, StorageType: a.storageType}
	}
	n := len(l.ranks)
	for rank := 0; rank <= n; rank++ {
		created, err := l.storage.EnsureTable(ctx, l.group, rank, n, l.keyType, columns)
		if err != nil {
			return nil, fmt.Errorf("failed to materialize rank %d: %w", rank, err)
		}
		if created {
			debug.Logf("trilist: created %s", adapter.TableName(l.group, rank, n))
		}
	}
	l.nextZero = l.storage.MaxPosition(ctx, l.group, 0, n) + 1
	return l, nil
}

// Group reports the group name the list was built for.
func (l *TriangularList[V, K]) Group() string { return l.group }

// RankCount reports N, the number of user ranks.
func (l *TriangularList[V, K]) RankCount() int { return len(l.ranks) }

// RankNames reports the registered rank names, finest first.
func (l *TriangularList[V, K]) RankNames() []string {
	names := make([]string, len(l.ranks))
	for i, r := range l.ranks {
		names[i] = r.Name
	}
	return names
}

// AggregateNames reports the registered aggregate names in registration
// order.
func (l *TriangularList[V, K]) AggregateNames() []string {
	names := make([]string, len(l.aggOrder))
	copy(names, l.aggOrder)
	return names
}

// WriteItem ingests one item: a fresh rank-0 row, then a walk up the rank
// chain recomputing every affected parent bucket from all its children at
// the rank below. Reports the number of child rows scanned (a cost
// diagnostic).
//
// Re-folding from children, rather than merging the new value in, is what
// keeps non-subtractable combiners like max correct when a bucket is
// revisited.
func (l *TriangularList[V, K]) WriteItem(ctx context.Context, v V) (int, error) {
	if l.deleted {
		return 0, ErrDeleted
	}
	k := l.keyFn(v)
	z := l.nextZero
	l.nextZero++

	n := len(l.ranks)
	scanned := 0
	for _, name := range l.aggOrder {
		agg := l.aggs[name]

		pos1 := l.ranks[0].Position(k)
		if err := l.storage.WriteAt(ctx, l.group, 0, n, name, pos1, z, 1, agg.selectFn(v), k, k); err != nil {
			return scanned, fmt.Errorf("failed to write item row: %w", err)
		}

		for childRank := 0; childRank < n; childRank++ {
			parentRank := childRank + 1
			grandRank := parentRank + 1
			parentPos := l.ranks[parentRank-1].Position(k)

			children, err := l.storage.ReadChildren(ctx, l.group, childRank, n, name, parentPos)
			if err != nil {
				return scanned, fmt.Errorf("failed to read rank %d children of %d: %w", childRank, parentPos, err)
			}
			if len(children) == 0 {
				// Nothing feeds this bucket; no ancestor can change.
				break
			}
			scanned += len(children)

			count, value, lower, upper, err := l.foldChildren(agg, children)
			if err != nil {
				return scanned, fmt.Errorf("failed to fold rank %d bucket %d: %w", parentRank, parentPos, err)
			}

			var grandPos int64
			if grandRank <= n {
				grandPos = l.ranks[grandRank-1].Position(k)
			}
			if err := l.storage.WriteAt(ctx, l.group, parentRank, n, name, grandPos, parentPos, count, value, lower, upper); err != nil {
				return scanned, fmt.Errorf("failed to write rank %d bucket %d: %w", parentRank, parentPos, err)
			}
		}
	}
	debug.Logf("trilist: wrote %s item %d, scanned %d child rows", l.group, z, scanned)
	return scanned, nil
}

// foldChildren reduces a parent bucket from its children: counts sum,
// values combine left-to-right in position order, bounds reduce pairwise
// through the user's min/max.
func (l *TriangularList[V, K]) foldChildren(agg *Aggregate[V], children []adapter.Bucket) (count int64, value any, lower, upper K, err error) {
	for i, c := range children {
		count += c.Count

		val, derr := agg.decodeFn(c.Value)
		if derr != nil {
			err = derr
			return
		}
		cl, derr := l.keyDecode(c.Lower)
		if derr != nil {
			err = derr
			return
		}
		cu, derr := l.keyDecode(c.Upper)
		if derr != nil {
			err = derr
			return
		}

		if i == 0 {
			value = val
			lower, upper = cl, cu
			continue
		}
		value, err = agg.combineFn(value, val)
		if err != nil {
			return
		}
		lower, _ = l.minMax(lower, cl)
		_, upper = l.minMax(upper, cu)
	}
	return
}

// DumpTables renders every rank table of the group for diagnostics.
func (l *TriangularList[V, K]) DumpTables(ctx context.Context) (string, error) {
	if l.deleted {
		return "", ErrDeleted
	}
	n := len(l.ranks)
	var out string
	for rank := 0; rank <= n; rank++ {
		dump, err := l.storage.DumpRank(ctx, l.group, rank, n)
		if err != nil {
			return out, fmt.Errorf("failed to dump rank %d: %w", rank, err)
		}
		out += dump + "\n"
	}
	return out, nil
}

// DeleteAllTablesAndData drops every rank table of the group. The list is
// permanently unusable afterwards; every later call fails with ErrDeleted.
func (l *TriangularList[V, K]) DeleteAllTablesAndData(ctx context.Context) error {
	if l.deleted {
		return ErrDeleted
	}
	n := len(l.ranks)
	for rank := 0; rank <= n; rank++ {
		if err := l.storage.DropTable(ctx, l.group, rank, n); err != nil {
			return fmt.Errorf("failed to drop rank %d: %w", rank, err)
		}
	}
	l.deleted = true
	return nil
}
