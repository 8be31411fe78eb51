package trilist

import (
	"context"
	"errors"
	"fmt"

	"github.com/untoldecay/promantle/internal/adapter"
)

// Point is one decoded bucket: the combined value (type-erased), the count
// of rank-0 items folded in, and the observed key bounds.
type Point[K any] struct {
	Value          any
	Count          int64
	Lower          K
	Upper          K
	Position       int64
	ParentPosition int64
}

// Bucket is a Point with the value asserted to the caller's type. Produced
// by the typed read helpers (PointAt, PointsOverRange, ChildrenOfPoint).
type Bucket[A any, K any] struct {
	Value          A
	Count          int64
	Lower          K
	Upper          K
	Position       int64
	ParentPosition int64
}

func (l *TriangularList[V, K]) aggregate(name string) (*Aggregate[V], error) {
	agg, ok := l.aggs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregate, name)
	}
	return agg, nil
}

func (l *TriangularList[V, K]) rankNumber(name string) (int, error) {
	r, ok := l.rankIndex[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRank, name)
	}
	return r, nil
}

func (l *TriangularList[V, K]) decodePoint(agg *Aggregate[V], b adapter.Bucket) (Point[K], error) {
	val, err := agg.decodeFn(b.Value)
	if err != nil {
		return Point[K]{}, err
	}
	lower, err := l.keyDecode(b.Lower)
	if err != nil {
		return Point[K]{}, err
	}
	upper, err := l.keyDecode(b.Upper)
	if err != nil {
		return Point[K]{}, err
	}
	return Point[K]{
		Value:          val,
		Count:          b.Count,
		Lower:          lower,
		Upper:          upper,
		Position:       b.Position,
		ParentPosition: b.ParentPosition,
	}, nil
}

// ReadPointAt reads the bucket holding key at the named rank. Reports
// (nil, nil) when the bucket is unoccupied.
func (l *TriangularList[V, K]) ReadPointAt(ctx context.Context, aggName, rankName string, key K) (*Point[K], error) {
	if l.deleted {
		return nil, ErrDeleted
	}
	agg, err := l.aggregate(aggName)
	if err != nil {
		return nil, err
	}
	rank, err := l.rankNumber(rankName)
	if err != nil {
		return nil, err
	}
	pos := l.ranks[rank-1].Position(key)
	b, err := l.storage.ReadAt(ctx, l.group, rank, len(l.ranks), aggName, pos)
	if errors.Is(err, adapter.ErrRowNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rank %d position %d: %w", rank, pos, err)
	}
	p, err := l.decodePoint(agg, *b)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadAggregateAt reads just the combined value of the bucket holding key
// at the named rank, or (nil, nil) when the bucket is unoccupied.
func (l *TriangularList[V, K]) ReadAggregateAt(ctx context.Context, aggName, rankName string, key K) (any, error) {
	p, err := l.ReadPointAt(ctx, aggName, rankName, key)
	if err != nil || p == nil {
		return nil, err
	}
	return p.Value, nil
}

// ReadChildrenOfPoint reads the children (at the rank below) of the bucket
// holding key at the named rank, ascending by position. For the finest
// user rank this yields the individual ingested items, each with count 1
// and equal bounds.
func (l *TriangularList[V, K]) ReadChildrenOfPoint(ctx context.Context, aggName, rankName string, key K) ([]Point[K], error) {
	if l.deleted {
		return nil, ErrDeleted
	}
	agg, err := l.aggregate(aggName)
	if err != nil {
		return nil, err
	}
	rank, err := l.rankNumber(rankName)
	if err != nil {
		return nil, err
	}
	pos := l.ranks[rank-1].Position(key)
	buckets, err := l.storage.ReadChildren(ctx, l.group, rank-1, len(l.ranks), aggName, pos)
	if err != nil {
		return nil, fmt.Errorf("failed to read rank %d children of %d: %w", rank-1, pos, err)
	}
	return l.decodePoints(agg, buckets)
}

// ReadPointsOverRange reads all occupied buckets between start and end
// (inclusive after mapping to positions) at the named rank, ascending.
func (l *TriangularList[V, K]) ReadPointsOverRange(ctx context.Context, aggName, rankName string, start, end K) ([]Point[K], error) {
	if l.deleted {
		return nil, ErrDeleted
	}
	agg, err := l.aggregate(aggName)
	if err != nil {
		return nil, err
	}
	rank, err := l.rankNumber(rankName)
	if err != nil {
		return nil, err
	}
	startPos := l.ranks[rank-1].Position(start)
	endPos := l.ranks[rank-1].Position(end)
	if endPos < startPos {
		return nil, fmt.Errorf("%w: positions %d..%d", ErrInvalidRange, startPos, endPos)
	}
	buckets, err := l.storage.ReadRange(ctx, l.group, rank, len(l.ranks), aggName, startPos, endPos)
	if err != nil {
		return nil, fmt.Errorf("failed to read rank %d range %d..%d: %w", rank, startPos, endPos, err)
	}
	return l.decodePoints(agg, buckets)
}

// ReadAggregateRange is ReadPointsOverRange projected to just the combined
// values.
func (l *TriangularList[V, K]) ReadAggregateRange(ctx context.Context, aggName, rankName string, start, end K) ([]any, error) {
	points, err := l.ReadPointsOverRange(ctx, aggName, rankName, start, end)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values, nil
}

func (l *TriangularList[V, K]) decodePoints(agg *Aggregate[V], buckets []adapter.Bucket) ([]Point[K], error) {
	points := make([]Point[K], 0, len(buckets))
	for _, b := range buckets {
		p, err := l.decodePoint(agg, b)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// AggregateAt reads the combined value at (rank, key) asserted to A.
// found is false when the bucket is unoccupied.
func AggregateAt[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], aggName, rankName string, key K) (value A, found bool, err error) {
	v, err := l.ReadAggregateAt(ctx, aggName, rankName, key)
	if err != nil || v == nil {
		return value, false, err
	}
	value, ok := v.(A)
	if !ok {
		return value, false, fmt.Errorf("%w: stored value is %T", ErrTypeMismatch, v)
	}
	return value, true, nil
}

// PointAt reads the full bucket at (rank, key) with the value asserted to
// A. Reports (nil, nil) when the bucket is unoccupied.
func PointAt[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], aggName, rankName string, key K) (*Bucket[A, K], error) {
	p, err := l.ReadPointAt(ctx, aggName, rankName, key)
	if err != nil || p == nil {
		return nil, err
	}
	b, err := typedBucket[A](*p)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ChildrenOfPoint reads the children of the bucket at (rank, key) with
// values asserted to A.
func ChildrenOfPoint[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], aggName, rankName string, key K) ([]Bucket[A, K], error) {
	points, err := l.ReadChildrenOfPoint(ctx, aggName, rankName, key)
	if err != nil {
		return nil, err
	}
	return typedBuckets[A](points)
}

// AggregateRange reads the combined values over [start, end] asserted
// to A.
func AggregateRange[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], aggName, rankName string, start, end K) ([]A, error) {
	values, err := l.ReadAggregateRange(ctx, aggName, rankName, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]A, len(values))
	for i, v := range values {
		a, ok := v.(A)
		if !ok {
			return nil, fmt.Errorf("%w: stored value is %T", ErrTypeMismatch, v)
		}
		out[i] = a
	}
	return out, nil
}

// PointsOverRange reads the full buckets over [start, end] with values
// asserted to A.
func PointsOverRange[A any, V any, K any](ctx context.Context, l *TriangularList[V, K], aggName, rankName string, start, end K) ([]Bucket[A, K], error) {
	points, err := l.ReadPointsOverRange(ctx, aggName, rankName, start, end)
	if err != nil {
		return nil, err
	}
	return typedBuckets[A](points)
}

func typedBucket[A any, K any](p Point[K]) (Bucket[A, K], error) {
	value, ok := p.Value.(A)
	if !ok {
		return Bucket[A, K]{}, fmt.Errorf("%w: stored value is %T", ErrTypeMismatch, p.Value)
	}
	return Bucket[A, K]{
		Value:          value,
		Count:          p.Count,
		Lower:          p.Lower,
		Upper:          p.Upper,
		Position:       p.Position,
		ParentPosition: p.ParentPosition,
	}, nil
}

func typedBuckets[A any, K any](points []Point[K]) ([]Bucket[A, K], error) {
	out := make([]Bucket[A, K], 0, len(points))
	for _, p := range points {
		b, err := typedBucket[A](p)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
