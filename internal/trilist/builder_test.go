package trilist

import (
	"errors"
	"testing"
	"time"

	"github.com/untoldecay/promantle/internal/adapter/memory"
)

type item struct {
	At    time.Time
	Spent float64
}

func spentAggregate() Aggregate[item] {
	return NewAggregate("Spent",
		func(v item) float64 { return v.Spent },
		func(a, b float64) float64 { return a + b },
		"DOUBLE PRECISION")
}

func keyedBuilder(t *testing.T, group string) *Builder[item, time.Time] {
	t.Helper()
	b := NewBuilder[item, time.Time](group)
	if err := b.UsingStorage(memory.New()); err != nil {
		t.Fatalf("UsingStorage failed: %v", err)
	}
	if err := b.KeyOn("TIMESTAMP", func(v item) time.Time { return v.At }, TimeMinMax); err != nil {
		t.Fatalf("KeyOn failed: %v", err)
	}
	return b
}

func TestBuildComplete(t *testing.T) {
	b := keyedBuilder(t, "ok")
	if err := b.Rank(1, "PerHour", BucketByDuration(time.Hour)); err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if err := b.Aggregate(spentAggregate()); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	list, err := b.Build(t.Context())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if list.RankCount() != 1 {
		t.Errorf("RankCount = %d, want 1", list.RankCount())
	}

	// A builder yields exactly one list.
	if _, err := b.Build(t.Context()); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second Build error = %v, want ErrAlreadyConfigured", err)
	}
}

func TestBuildMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *Builder[item, time.Time]
	}{
		{"no storage", func(t *testing.T) *Builder[item, time.Time] {
			b := NewBuilder[item, time.Time]("g")
			mustRank(t, b, 1, "PerHour")
			mustAgg(t, b)
			return b
		}},
		{"no key", func(t *testing.T) *Builder[item, time.Time] {
			b := NewBuilder[item, time.Time]("g")
			if err := b.UsingStorage(memory.New()); err != nil {
				t.Fatal(err)
			}
			mustRank(t, b, 1, "PerHour")
			mustAgg(t, b)
			return b
		}},
		{"no ranks", func(t *testing.T) *Builder[item, time.Time] {
			b := keyedBuilder(t, "g")
			mustAgg(t, b)
			return b
		}},
		{"no aggregates", func(t *testing.T) *Builder[item, time.Time] {
			b := keyedBuilder(t, "g")
			mustRank(t, b, 1, "PerHour")
			return b
		}},
		{"empty group", func(t *testing.T) *Builder[item, time.Time] {
			b := NewBuilder[item, time.Time]("")
			if err := b.UsingStorage(memory.New()); err != nil {
				t.Fatal(err)
			}
			if err := b.KeyOn("TIMESTAMP", func(v item) time.Time { return v.At }, TimeMinMax); err != nil {
				t.Fatal(err)
			}
			mustRank(t, b, 1, "PerHour")
			mustAgg(t, b)
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.build(t)
			if _, err := b.Build(t.Context()); !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Build error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func mustRank(t *testing.T, b *Builder[item, time.Time], n int, name string) {
	t.Helper()
	if err := b.Rank(n, name, BucketByDuration(time.Hour)); err != nil {
		t.Fatalf("Rank(%d, %q) failed: %v", n, name, err)
	}
}

func mustAgg(t *testing.T, b *Builder[item, time.Time]) {
	t.Helper()
	if err := b.Aggregate(spentAggregate()); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
}

func TestRankValidation(t *testing.T) {
	b := keyedBuilder(t, "g")
	mustRank(t, b, 1, "PerHour")

	if err := b.Rank(1, "Other", BucketByDuration(time.Hour)); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("duplicate rank number error = %v, want ErrConfigInvalid", err)
	}
	if err := b.Rank(2, "PerHour", BucketByDuration(time.Hour)); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("duplicate rank name error = %v, want ErrConfigInvalid", err)
	}
	if err := b.Rank(-1, "Negative", BucketByDuration(time.Hour)); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("negative rank number error = %v, want ErrConfigInvalid", err)
	}

	// A gap only surfaces at Build.
	mustRank(t, b, 3, "PerWeek")
	mustAgg(t, b)
	if _, err := b.Build(t.Context()); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("gapped Build error = %v, want ErrConfigInvalid", err)
	}
}

func TestRankNumbersNeedNotStartAtOne(t *testing.T) {
	b := keyedBuilder(t, "g")
	mustRank(t, b, 5, "PerMinute")
	mustRank(t, b, 6, "PerHour")
	mustAgg(t, b)
	list, err := b.Build(t.Context())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := []string{"PerMinute", "PerHour"}
	got := list.RankNames()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("RankNames = %v, want %v", got, want)
	}
}

func TestDuplicateAggregate(t *testing.T) {
	b := keyedBuilder(t, "g")
	mustAgg(t, b)
	if err := b.Aggregate(spentAggregate()); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("duplicate aggregate error = %v, want ErrConfigInvalid", err)
	}
}

func TestDoubleConfigure(t *testing.T) {
	b := keyedBuilder(t, "g")
	if err := b.UsingStorage(memory.New()); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second UsingStorage error = %v, want ErrAlreadyConfigured", err)
	}
	if err := b.KeyOn("TIMESTAMP", func(v item) time.Time { return v.At }, TimeMinMax); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second KeyOn error = %v, want ErrAlreadyConfigured", err)
	}
	if err := b.KeyDecodedBy(DecodeTime); err != nil {
		t.Fatalf("KeyDecodedBy failed: %v", err)
	}
	if err := b.KeyDecodedBy(DecodeTime); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second KeyDecodedBy error = %v, want ErrAlreadyConfigured", err)
	}
}
