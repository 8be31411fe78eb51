// Package adaptertest runs the TableAdapter contract against any backend.
// Backend packages call Run from their own tests.
package adaptertest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/untoldecay/promantle/internal/adapter"
)

const (
	group     = "contract"
	rankCount = 2
)

var columns = []adapter.AggregateColumn{
	{Name: "Spent", StorageType: "DOUBLE PRECISION"},
	{Name: "Visits", StorageType: "INT8"},
}

// Run exercises the full adapter contract. newAdapter must return a fresh,
// empty backend for each call.
func Run(t *testing.T, newAdapter func(t *testing.T) adapter.TableAdapter) {
	t.Run("EnsureTableIdempotent", func(t *testing.T) { testEnsureTable(t, newAdapter(t)) })
	t.Run("UpsertByPosition", func(t *testing.T) { testUpsert(t, newAdapter(t)) })
	t.Run("MultiAggregateRow", func(t *testing.T) { testMultiAggregate(t, newAdapter(t)) })
	t.Run("RangeAndChildren", func(t *testing.T) { testRangeChildren(t, newAdapter(t)) })
	t.Run("MaxPosition", func(t *testing.T) { testMaxPosition(t, newAdapter(t)) })
	t.Run("DumpAndDrop", func(t *testing.T) { testDumpDrop(t, newAdapter(t)) })
}

func mustEnsure(t *testing.T, a adapter.TableAdapter, rank int) {
	t.Helper()
	ctx := context.Background()
	if _, err := a.EnsureTable(ctx, group, rank, rankCount, "INT8", columns); err != nil {
		t.Fatalf("EnsureTable(rank %d) failed: %v", rank, err)
	}
}

func testEnsureTable(t *testing.T, a adapter.TableAdapter) {
	ctx := context.Background()
	created, err := a.EnsureTable(ctx, group, 1, rankCount, "INT8", columns)
	if err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if !created {
		t.Error("first EnsureTable should report created")
	}
	created, err = a.EnsureTable(ctx, group, 1, rankCount, "INT8", columns)
	if err != nil {
		t.Fatalf("second EnsureTable failed: %v", err)
	}
	if created {
		t.Error("second EnsureTable should not report created")
	}
}

func testUpsert(t *testing.T, a adapter.TableAdapter) {
	ctx := context.Background()
	mustEnsure(t, a, 1)

	if err := a.WriteAt(ctx, group, 1, rankCount, "Spent", 10, 100, 1, 5.5, int64(7), int64(7)); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := a.WriteAt(ctx, group, 1, rankCount, "Spent", 10, 100, 3, 9.25, int64(6), int64(9)); err != nil {
		t.Fatalf("second WriteAt failed: %v", err)
	}

	b, err := a.ReadAt(ctx, group, 1, rankCount, "Spent", 100)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if b.Count != 3 {
		t.Errorf("Count = %d, want 3 (upsert should replace)", b.Count)
	}
	if v, ok := b.Value.(float64); !ok || v != 9.25 {
		t.Errorf("Value = %v (%T), want 9.25", b.Value, b.Value)
	}
	if b.ParentPosition != 10 {
		t.Errorf("ParentPosition = %d, want 10", b.ParentPosition)
	}

	if _, err := a.ReadAt(ctx, group, 1, rankCount, "Spent", 999); !errors.Is(err, adapter.ErrRowNotFound) {
		t.Errorf("ReadAt(missing) error = %v, want ErrRowNotFound", err)
	}
}

func testMultiAggregate(t *testing.T, a adapter.TableAdapter) {
	ctx := context.Background()
	mustEnsure(t, a, 1)

	if err := a.WriteAt(ctx, group, 1, rankCount, "Spent", 10, 100, 2, 5.5, int64(6), int64(9)); err != nil {
		t.Fatalf("WriteAt(Spent) failed: %v", err)
	}
	if err := a.WriteAt(ctx, group, 1, rankCount, "Visits", 10, 100, 2, int64(42), int64(6), int64(9)); err != nil {
		t.Fatalf("WriteAt(Visits) failed: %v", err)
	}

	spent, err := a.ReadAt(ctx, group, 1, rankCount, "Spent", 100)
	if err != nil {
		t.Fatalf("ReadAt(Spent) failed: %v", err)
	}
	if v, ok := spent.Value.(float64); !ok || v != 5.5 {
		t.Errorf("Spent value = %v (%T), want 5.5 after writing Visits", spent.Value, spent.Value)
	}
	visits, err := a.ReadAt(ctx, group, 1, rankCount, "Visits", 100)
	if err != nil {
		t.Fatalf("ReadAt(Visits) failed: %v", err)
	}
	if v, ok := visits.Value.(int64); !ok || v != 42 {
		t.Errorf("Visits value = %v (%T), want 42", visits.Value, visits.Value)
	}
}

func testRangeChildren(t *testing.T, a adapter.TableAdapter) {
	ctx := context.Background()
	mustEnsure(t, a, 0)

	// Out-of-order writes; reads must come back position-ascending.
	for _, w := range []struct {
		pos, parent int64
		val         float64
	}{
		{5, 2, 50}, {1, 1, 10}, {3, 1, 30}, {2, 1, 20}, {4, 2, 40},
	} {
		if err := a.WriteAt(ctx, group, 0, rankCount, "Spent", w.parent, w.pos, 1, w.val, w.pos, w.pos); err != nil {
			t.Fatalf("WriteAt(%d) failed: %v", w.pos, err)
		}
	}

	got, err := a.ReadRange(ctx, group, 0, rankCount, "Spent", 2, 4)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadRange returned %d rows, want 3", len(got))
	}
	for i, want := range []int64{2, 3, 4} {
		if got[i].Position != want {
			t.Errorf("ReadRange[%d].Position = %d, want %d", i, got[i].Position, want)
		}
	}

	kids, err := a.ReadChildren(ctx, group, 0, rankCount, "Spent", 1)
	if err != nil {
		t.Fatalf("ReadChildren failed: %v", err)
	}
	if len(kids) != 3 {
		t.Fatalf("ReadChildren returned %d rows, want 3", len(kids))
	}
	for i, want := range []int64{1, 2, 3} {
		if kids[i].Position != want {
			t.Errorf("ReadChildren[%d].Position = %d, want %d", i, kids[i].Position, want)
		}
	}

	empty, err := a.ReadRange(ctx, group, 0, rankCount, "Spent", 100, 200)
	if err != nil {
		t.Fatalf("ReadRange(empty) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ReadRange over empty span returned %d rows", len(empty))
	}
}

func testMaxPosition(t *testing.T, a adapter.TableAdapter) {
	ctx := context.Background()

	// Missing table: swallowed, 0.
	if got := a.MaxPosition(ctx, group, 1, rankCount); got != 0 {
		t.Errorf("MaxPosition(missing table) = %d, want 0", got)
	}

	mustEnsure(t, a, 1)
	if got := a.MaxPosition(ctx, group, 1, rankCount); got != 0 {
		t.Errorf("MaxPosition(empty table) = %d, want 0", got)
	}

	for _, pos := range []int64{3, 17, 9} {
		if err := a.WriteAt(ctx, group, 1, rankCount, "Spent", 0, pos, 1, 1.0, pos, pos); err != nil {
			t.Fatalf("WriteAt failed: %v", err)
		}
	}
	if got := a.MaxPosition(ctx, group, 1, rankCount); got != 17 {
		t.Errorf("MaxPosition = %d, want 17", got)
	}
}

func testDumpDrop(t *testing.T, a adapter.TableAdapter) {
	ctx := context.Background()
	mustEnsure(t, a, 1)

	if err := a.WriteAt(ctx, group, 1, rankCount, "Spent", 0, 1, 1, 2.5, int64(1), int64(1)); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	dump, err := a.DumpRank(ctx, group, 1, rankCount)
	if err != nil {
		t.Fatalf("DumpRank failed: %v", err)
	}
	name := adapter.TableName(group, 1, rankCount)
	if !strings.Contains(dump, name) {
		t.Errorf("dump missing table name %s:\n%s", name, dump)
	}
	if !strings.Contains(dump, "spent_value") {
		t.Errorf("dump missing spent_value column:\n%s", dump)
	}
	if !strings.Contains(dump, "(1 rows)") {
		t.Errorf("dump missing row count:\n%s", dump)
	}

	if err := a.DropTable(ctx, group, 1, rankCount); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	if got := a.MaxPosition(ctx, group, 1, rankCount); got != 0 {
		t.Errorf("MaxPosition after drop = %d, want 0", got)
	}
	// Dropping again is fine.
	if err := a.DropTable(ctx, group, 1, rankCount); err != nil {
		t.Fatalf("second DropTable failed: %v", err)
	}
	// And the table can come back.
	created, err := a.EnsureTable(ctx, group, 1, rankCount, "INT8", columns)
	if err != nil {
		t.Fatalf("EnsureTable after drop failed: %v", err)
	}
	if !created {
		t.Error("EnsureTable after drop should report created")
	}
}
