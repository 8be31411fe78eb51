// Package adapter defines the interface for rank-table storage backends.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrRowNotFound is returned by ReadAt when no bucket row exists at the
// requested position. Callers that treat absence as "no data" should test
// for it with errors.Is rather than propagating.
var ErrRowNotFound = errors.New("bucket row not found")

// AggregateColumn describes one aggregate's column pair in a rank table.
// Name must already be sanitized; the adapter derives the physical columns
// as <name>_count (INT8) and <name>_value (StorageType).
type AggregateColumn struct {
	Name        string
	StorageType string
}

// Bucket is one persisted rank-table row, read back for a single aggregate.
// Value, Lower and Upper carry whatever the backend returned for the stored
// column type; the engine decodes them into the caller's Go types.
type Bucket struct {
	Position       int64
	ParentPosition int64
	Count          int64
	Value          any
	Lower          any
	Upper          any
}

// TableAdapter persists rank buckets for one storage backend.
//
// Every operation is scoped by (group, rank, rankCount) and resolves to the
// deterministic table name produced by TableName. Adapters hold no engine
// state between calls; each call acquires a connection, runs, and releases
// it before returning.
//
// # Upsert Semantics
//
//   - WriteAt is an atomic insert-or-update keyed by position
//   - When several aggregates share a row, a WriteAt for one aggregate
//     updates only that aggregate's count/value pair plus the shared
//     parent_position and bound columns
//   - Reads for an aggregate whose pair was never written report count 0
//
// # Error Semantics
//
//   - ReadAt reports a missing row as ErrRowNotFound
//   - MaxPosition never fails: any backend error (including a missing
//     table) reports position 0, so engines can bootstrap against a
//     brand-new group
//   - All other failures propagate to the caller wrapped with context
type TableAdapter interface {
	// EnsureTable creates the rank table if it does not exist. Idempotent.
	// Reports true iff this call created the table.
	EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []AggregateColumn) (bool, error)

	// WriteAt upserts the bucket row at position for one aggregate.
	WriteAt(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition, position, count int64, value, lower, upper any) error

	// ReadAt reads the bucket row at position for one aggregate.
	ReadAt(ctx context.Context, group string, rank, rankCount int, aggregate string, position int64) (*Bucket, error)

	// ReadRange reads all bucket rows with start <= position <= end,
	// ascending by position.
	ReadRange(ctx context.Context, group string, rank, rankCount int, aggregate string, start, end int64) ([]Bucket, error)

	// ReadChildren reads all bucket rows whose parent_position equals
	// parentPosition, ascending by position.
	ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregate string, parentPosition int64) ([]Bucket, error)

	// MaxPosition reports the largest position in the table, or 0 when the
	// table is empty or missing. Backend errors are swallowed.
	MaxPosition(ctx context.Context, group string, rank, rankCount int) int64

	// DumpRank renders the table's full contents for diagnostics.
	DumpRank(ctx context.Context, group string, rank, rankCount int) (string, error)

	// DropTable removes the rank table and all its rows.
	DropTable(ctx context.Context, group string, rank, rankCount int) error
}

// Sanitize reduces s to a safe SQL identifier fragment: spaces are dropped
// and every other character outside [0-9A-Za-z_] becomes '_'. The result is
// lowercased so write and read paths agree on column names regardless of
// how the caller spelled the aggregate.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			// dropped
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SanitizeType reduces a declared column type to a safe SQL type
// expression. Unlike identifiers, type expressions keep spaces, digits,
// commas and parentheses ("DOUBLE PRECISION", "NUMERIC(10,2)"); everything
// else becomes '_'.
func SanitizeType(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r == '_', r == ' ', r == '(', r == ')', r == ',':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimSpace(b.String())
}

// TableName derives the physical table identifier for (group, rank,
// rankCount): <group>_<rank>_of_<rankCount>, with the group sanitized.
func TableName(group string, rank, rankCount int) string {
	return fmt.Sprintf("%s_%d_of_%d", Sanitize(group), rank, rankCount)
}

// CountColumn and ValueColumn derive an aggregate's column pair. The
// _count/_value suffixes are reserved: they are appended after
// sanitization so both paths resolve identically.
func CountColumn(aggregate string) string { return Sanitize(aggregate) + "_count" }

// ValueColumn derives the value column name for an aggregate.
func ValueColumn(aggregate string) string { return Sanitize(aggregate) + "_value" }
