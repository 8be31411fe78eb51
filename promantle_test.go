package promantle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/untoldecay/promantle"
)

type visit struct {
	At       time.Time
	Duration float64
}

func TestLibrarySurface(t *testing.T) {
	ctx := t.Context()

	b := promantle.NewBuilder[visit, time.Time]("visits")
	if err := b.UsingStorage(promantle.NewMemoryAdapter()); err != nil {
		t.Fatalf("UsingStorage failed: %v", err)
	}
	if err := b.KeyOn("TIMESTAMP", func(v visit) time.Time { return v.At }, promantle.TimeMinMax); err != nil {
		t.Fatalf("KeyOn failed: %v", err)
	}
	if err := b.Rank(1, "PerHour", promantle.BucketByDuration(time.Hour)); err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if err := b.Rank(2, "PerDay", promantle.BucketByDuration(24*time.Hour)); err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	longest := promantle.NewAggregate("Longest",
		func(v visit) float64 { return v.Duration },
		func(a, b float64) float64 {
			if b > a {
				return b
			}
			return a
		},
		"DOUBLE PRECISION")
	if err := b.Aggregate(longest); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	list, err := b.Build(ctx)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	base := time.Date(2020, 5, 5, 9, 0, 0, 0, time.UTC)
	for i, d := range []float64{12, 45, 3, 30} {
		if _, err := list.WriteItem(ctx, visit{At: base.Add(time.Duration(i) * 20 * time.Minute), Duration: d}); err != nil {
			t.Fatalf("WriteItem failed: %v", err)
		}
	}

	got, found, err := promantle.AggregateAt[float64](ctx, list, "Longest", "PerDay", base)
	if err != nil {
		t.Fatalf("AggregateAt failed: %v", err)
	}
	if !found || got != 45 {
		t.Errorf("day max = %v (found=%v), want 45", got, found)
	}

	buckets, err := promantle.PointsOverRange[float64](ctx, list, "Longest", "PerHour", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PointsOverRange failed: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("got %d hour buckets, want 2", len(buckets))
	}
	if buckets[0].Count != 3 || buckets[0].Value != 45 {
		t.Errorf("hour 9 = value %v count %d, want 45/3", buckets[0].Value, buckets[0].Count)
	}
	if buckets[1].Count != 1 || buckets[1].Value != 30 {
		t.Errorf("hour 10 = value %v count %d, want 30/1", buckets[1].Value, buckets[1].Count)
	}

	if _, _, err := promantle.AggregateAt[int64](ctx, list, "Longest", "PerDay", base); !errors.Is(err, promantle.ErrTypeMismatch) {
		t.Errorf("mismatched read error = %v, want ErrTypeMismatch", err)
	}
}
