// Package promantle provides a pre-aggregated hierarchical list store.
//
// A TriangularList maintains several ranks of progressively coarser
// aggregations over a backing relational store. Every write folds the new
// item into one bucket per rank, so point and range queries cost
// proportionally to the chosen rank, not to the volume of ingested data.
//
// This package exports the library surface; the engine, adapters and
// their contracts live in internal packages.
package promantle

import (
	"context"

	"github.com/untoldecay/promantle/internal/adapter"
	"github.com/untoldecay/promantle/internal/adapter/memory"
	"github.com/untoldecay/promantle/internal/adapter/postgres"
	"github.com/untoldecay/promantle/internal/adapter/sqlite"
	"github.com/untoldecay/promantle/internal/trilist"
)

// TableAdapter is the persistence contract a storage backend implements.
type TableAdapter = adapter.TableAdapter

// AggregateColumn describes one aggregate's column pair to an adapter.
type AggregateColumn = adapter.AggregateColumn

// TriangularList is the engine: N rank tables plus the implicit rank-0
// item table, kept consistent on every write.
type TriangularList[V any, K any] = trilist.TriangularList[V, K]

// Builder assembles and validates a TriangularList configuration.
type Builder[V any, K any] = trilist.Builder[V, K]

// Aggregate is a named (select, combine, storage type) triple.
type Aggregate[V any] = trilist.Aggregate[V]

// Rank is a named granularity level with its key-to-position function.
type Rank[K any] = trilist.Rank[K]

// Point is a decoded bucket with a type-erased value.
type Point[K any] = trilist.Point[K]

// Bucket is a decoded bucket with the value asserted to A.
type Bucket[A any, K any] = trilist.Bucket[A, K]

// Sentinel errors; test with errors.Is.
var (
	ErrConfigInvalid     = trilist.ErrConfigInvalid
	ErrAlreadyConfigured = trilist.ErrAlreadyConfigured
	ErrUnknownAggregate  = trilist.ErrUnknownAggregate
	ErrUnknownRank       = trilist.ErrUnknownRank
	ErrTypeMismatch      = trilist.ErrTypeMismatch
	ErrInvalidRange      = trilist.ErrInvalidRange
	ErrDeleted           = trilist.ErrDeleted
)

// NewBuilder starts a builder for the named group.
func NewBuilder[V any, K any](group string) *Builder[V, K] {
	return trilist.NewBuilder[V, K](group)
}

// NewAggregate builds an aggregate from typed select and combine
// functions.
func NewAggregate[V any, A any](name string, sel func(V) A, combine func(A, A) A, storageType string) Aggregate[V] {
	return trilist.NewAggregate(name, sel, combine, storageType)
}

// NewMemoryAdapter creates an in-process adapter (tests, ephemeral use).
func NewMemoryAdapter() TableAdapter {
	return memory.New()
}

// NewSQLiteAdapter opens (or creates) a SQLite-backed adapter at dbPath.
func NewSQLiteAdapter(ctx context.Context, dbPath string) (TableAdapter, error) {
	return sqlite.New(ctx, dbPath)
}

// NewPostgresAdapter connects an adapter to a PostgreSQL-compatible
// server.
func NewPostgresAdapter(ctx context.Context, connString string) (TableAdapter, error) {
	return postgres.New(ctx, connString)
}

// Typed read helpers; A is the aggregate's registered Go type.

// AggregateAt reads one combined value; found is false for an unoccupied
// bucket.
func AggregateAt[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], agg, rank string, key K) (A, bool, error) {
	return trilist.AggregateAt[A](ctx, l, agg, rank, key)
}

// PointAt reads one full bucket, or nil when unoccupied.
func PointAt[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], agg, rank string, key K) (*Bucket[A, K], error) {
	return trilist.PointAt[A](ctx, l, agg, rank, key)
}

// ChildrenOfPoint reads the children of the bucket holding key.
func ChildrenOfPoint[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], agg, rank string, key K) ([]Bucket[A, K], error) {
	return trilist.ChildrenOfPoint[A](ctx, l, agg, rank, key)
}

// AggregateRange reads the combined values over [start, end].
func AggregateRange[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], agg, rank string, start, end K) ([]A, error) {
	return trilist.AggregateRange[A](ctx, l, agg, rank, start, end)
}

// PointsOverRange reads the full buckets over [start, end].
func PointsOverRange[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], agg, rank string, start, end K) ([]Bucket[A, K], error) {
	return trilist.PointsOverRange[A](ctx, l, agg, rank, start, end)
}

// Time-key helpers.

// DecodeTime maps backend-returned bounds onto time.Time; pass to
// Builder.KeyDecodedBy for timestamp keys in SQL backends.
var DecodeTime = trilist.DecodeTime

// TimeMinMax orders two timestamps.
var TimeMinMax = trilist.TimeMinMax

// BucketByDuration buckets timestamps into fixed windows.
var BucketByDuration = trilist.BucketByDuration
