// Package adapter tests for identifier derivation and contract shape.
package adapter

import (
	"context"
	"testing"
)

// Compile-time interface conformance check for a minimal mock; real
// conformance tests for the memory, sqlite and postgres adapters live in
// their packages.
var _ TableAdapter = (*mockAdapter)(nil)

type mockAdapter struct{}

func (m *mockAdapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []AggregateColumn) (bool, error) {
	return false, nil
}
func (m *mockAdapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition, position, count int64, value, lower, upper any) error {
	return nil
}
func (m *mockAdapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregate string, position int64) (*Bucket, error) {
	return nil, ErrRowNotFound
}
func (m *mockAdapter) ReadRange(ctx context.Context, group string, rank, rankCount int, aggregate string, start, end int64) ([]Bucket, error) {
	return nil, nil
}
func (m *mockAdapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition int64) ([]Bucket, error) {
	return nil, nil
}
func (m *mockAdapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) int64 {
	return 0
}
func (m *mockAdapter) DumpRank(ctx context.Context, group string, rank, rankCount int) (string, error) {
	return "", nil
}
func (m *mockAdapter) DropTable(ctx context.Context, group string, rank, rankCount int) error {
	return nil
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Spent", "spent"},
		{"MaxTransaction", "maxtransaction"},
		{"with space", "withspace"},
		{"weird-name!", "weird_name_"},
		{"already_ok_123", "already_ok_123"},
		{"Ünïcode", "_n_code"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DOUBLE PRECISION", "DOUBLE PRECISION"},
		{"NUMERIC(10,2)", "NUMERIC(10,2)"},
		{"TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITH TIME ZONE"},
		{"INT8; DROP TABLE x", "INT8_ DROP TABLE x"},
	}
	for _, tt := range tests {
		if got := SanitizeType(tt.in); got != tt.want {
			t.Errorf("SanitizeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableName(t *testing.T) {
	if got := TableName("Spending", 1, 4); got != "spending_1_of_4" {
		t.Errorf("TableName = %q, want spending_1_of_4", got)
	}
	if got := TableName("my group!", 0, 2); got != "mygroup__0_of_2" {
		t.Errorf("TableName = %q, want mygroup__0_of_2", got)
	}
}

func TestAggregateColumns(t *testing.T) {
	if got := CountColumn("Spent"); got != "spent_count" {
		t.Errorf("CountColumn = %q", got)
	}
	if got := ValueColumn("Max Transaction"); got != "maxtransaction_value" {
		t.Errorf("ValueColumn = %q", got)
	}
}
