// Package listdef loads declarative list definitions for the pml CLI: a
// group plus time-bucketed ranks and numeric aggregates over JSONL
// records. The CLI covers the common time-series case; arbitrary key and
// selector functions remain library territory.
package listdef

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/untoldecay/promantle/internal/adapter"
	"github.com/untoldecay/promantle/internal/trilist"
)

// Definition is one parsed list definition file.
type Definition struct {
	Group      string         `toml:"group"`
	Ranks      []RankDef      `toml:"rank"`
	Aggregates []AggregateDef `toml:"aggregate"`
}

// RankDef is a named bucket granularity. Every is a Go duration string;
// ranks must appear finest first.
type RankDef struct {
	Name  string `toml:"name"`
	Every string `toml:"every"`

	every time.Duration
}

// AggregateDef folds one numeric record field. Op is sum, max, min or
// count; Type defaults to DOUBLE PRECISION (INT8 for count).
type AggregateDef struct {
	Name  string `toml:"name"`
	Field string `toml:"field"`
	Op    string `toml:"op"`
	Type  string `toml:"type"`
}

// Record is one ingested JSONL line: a timestamp key plus numeric fields.
type Record struct {
	At     time.Time
	Fields map[string]float64
}

// Load reads and validates a definition file.
func Load(path string) (*Definition, error) {
	var def Definition
	if _, err := toml.DecodeFile(path, &def); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := def.validate(); err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", path, err)
	}
	return &def, nil
}

func (d *Definition) validate() error {
	if d.Group == "" {
		return fmt.Errorf("group is required")
	}
	if len(d.Ranks) == 0 {
		return fmt.Errorf("at least one [[rank]] is required")
	}
	var prev time.Duration
	for i := range d.Ranks {
		r := &d.Ranks[i]
		if r.Name == "" {
			return fmt.Errorf("rank %d has no name", i)
		}
		every, err := time.ParseDuration(r.Every)
		if err != nil {
			return fmt.Errorf("rank %q: bad every %q: %w", r.Name, r.Every, err)
		}
		if every <= 0 {
			return fmt.Errorf("rank %q: every must be positive", r.Name)
		}
		if every <= prev {
			return fmt.Errorf("rank %q: ranks must be ordered finest to coarsest", r.Name)
		}
		r.every = every
		prev = every
	}
	if len(d.Aggregates) == 0 {
		return fmt.Errorf("at least one [[aggregate]] is required")
	}
	for i, a := range d.Aggregates {
		if a.Name == "" {
			return fmt.Errorf("aggregate %d has no name", i)
		}
		switch a.Op {
		case "sum", "max", "min":
			if a.Field == "" {
				return fmt.Errorf("aggregate %q: op %s requires a field", a.Name, a.Op)
			}
		case "count":
		default:
			return fmt.Errorf("aggregate %q: unknown op %q", a.Name, a.Op)
		}
	}
	return nil
}

// Build assembles the engine for this definition over the given adapter.
// Definitions constructed by hand (not via Load) are validated here.
func (d *Definition) Build(ctx context.Context, store adapter.TableAdapter) (*trilist.TriangularList[Record, time.Time], error) {
	if len(d.Ranks) > 0 && d.Ranks[0].every == 0 {
		if err := d.validate(); err != nil {
			return nil, err
		}
	}
	b := trilist.NewBuilder[Record, time.Time](d.Group)
	if err := b.UsingStorage(store); err != nil {
		return nil, err
	}
	if err := b.KeyOn("TIMESTAMP", func(r Record) time.Time { return r.At }, trilist.TimeMinMax); err != nil {
		return nil, err
	}
	if err := b.KeyDecodedBy(trilist.DecodeTime); err != nil {
		return nil, err
	}
	for i, r := range d.Ranks {
		if err := b.Rank(i+1, r.Name, trilist.BucketByDuration(r.every)); err != nil {
			return nil, err
		}
	}
	for _, a := range d.Aggregates {
		if err := b.Aggregate(a.toAggregate()); err != nil {
			return nil, err
		}
	}
	return b.Build(ctx)
}

func (a AggregateDef) toAggregate() trilist.Aggregate[Record] {
	field := a.Field
	switch a.Op {
	case "count":
		storage := a.Type
		if storage == "" {
			storage = "INT8"
		}
		return trilist.NewAggregate(a.Name,
			func(Record) int64 { return 1 },
			func(x, y int64) int64 { return x + y },
			storage)
	case "max":
		return floatAggregate(a, field, func(x, y float64) float64 {
			if y > x {
				return y
			}
			return x
		})
	case "min":
		return floatAggregate(a, field, func(x, y float64) float64 {
			if y < x {
				return y
			}
			return x
		})
	default: // sum
		return floatAggregate(a, field, func(x, y float64) float64 { return x + y })
	}
}

func floatAggregate(a AggregateDef, field string, combine func(float64, float64) float64) trilist.Aggregate[Record] {
	storage := a.Type
	if storage == "" {
		storage = "DOUBLE PRECISION"
	}
	return trilist.NewAggregate(a.Name,
		func(r Record) float64 { return r.Fields[field] },
		combine, storage)
}

// ParseRecord decodes one JSONL line: {"at": "RFC3339", "<field>": number,
// ...}. Non-numeric fields other than "at" are rejected.
func ParseRecord(line []byte) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, fmt.Errorf("failed to parse record: %w", err)
	}
	atRaw, ok := raw["at"]
	if !ok {
		return Record{}, fmt.Errorf("record has no \"at\" timestamp")
	}
	atStr, ok := atRaw.(string)
	if !ok {
		return Record{}, fmt.Errorf("record \"at\" is %T, want RFC3339 string", atRaw)
	}
	at, err := time.Parse(time.RFC3339, atStr)
	if err != nil {
		return Record{}, fmt.Errorf("record \"at\" %q: %w", atStr, err)
	}
	rec := Record{At: at, Fields: make(map[string]float64, len(raw)-1)}
	for k, v := range raw {
		if k == "at" {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			return Record{}, fmt.Errorf("record field %q is %T, want number", k, v)
		}
		rec.Fields[k] = f
	}
	return rec, nil
}
