package listdef

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/promantle/internal/adapter/memory"
	"github.com/untoldecay/promantle/internal/trilist"
)

const goodDef = `
group = "spending"

[[rank]]
name  = "PerMinute"
every = "1m"

[[rank]]
name  = "PerHour"
every = "1h"

[[aggregate]]
name  = "Spent"
field = "spent"
op    = "sum"

[[aggregate]]
name  = "Visits"
op    = "count"
`

func writeDef(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	def, err := Load(writeDef(t, goodDef))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if def.Group != "spending" {
		t.Errorf("Group = %q", def.Group)
	}
	if len(def.Ranks) != 2 || def.Ranks[0].Name != "PerMinute" {
		t.Errorf("Ranks = %+v", def.Ranks)
	}
	if len(def.Aggregates) != 2 {
		t.Errorf("Aggregates = %+v", def.Aggregates)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no group", `
[[rank]]
name = "PerHour"
every = "1h"
[[aggregate]]
name = "Visits"
op = "count"
`, "group is required"},
		{"misordered ranks", `
group = "g"
[[rank]]
name = "PerHour"
every = "1h"
[[rank]]
name = "PerMinute"
every = "1m"
[[aggregate]]
name = "Visits"
op = "count"
`, "finest to coarsest"},
		{"bad duration", `
group = "g"
[[rank]]
name = "PerHour"
every = "sixty minutes"
[[aggregate]]
name = "Visits"
op = "count"
`, "bad every"},
		{"unknown op", `
group = "g"
[[rank]]
name = "PerHour"
every = "1h"
[[aggregate]]
name = "Spent"
field = "spent"
op = "median"
`, "unknown op"},
		{"sum without field", `
group = "g"
[[rank]]
name = "PerHour"
every = "1h"
[[aggregate]]
name = "Spent"
op = "sum"
`, "requires a field"},
		{"no aggregates", `
group = "g"
[[rank]]
name = "PerHour"
every = "1h"
`, "at least one [[aggregate]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDef(t, tt.content))
			if err == nil {
				t.Fatal("Load should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildAndIngest(t *testing.T) {
	def, err := Load(writeDef(t, goodDef))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	list, err := def.Build(t.Context(), memory.New())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lines := []string{
		`{"at": "2020-05-05T10:11:12Z", "spent": 5.1}`,
		`{"at": "2020-05-05T10:30:00Z", "spent": 2.4}`,
	}
	for _, line := range lines {
		rec, err := ParseRecord([]byte(line))
		if err != nil {
			t.Fatalf("ParseRecord failed: %v", err)
		}
		if _, err := list.WriteItem(t.Context(), rec); err != nil {
			t.Fatalf("WriteItem failed: %v", err)
		}
	}

	at := time.Date(2020, 5, 5, 10, 0, 0, 0, time.UTC)
	spent, found, err := trilist.AggregateAt[float64](t.Context(), list, "Spent", "PerHour", at)
	if err != nil || !found {
		t.Fatalf("AggregateAt(Spent) = %v, %v", found, err)
	}
	if spent < 7.49 || spent > 7.51 {
		t.Errorf("Spent = %v, want 7.5", spent)
	}
	visits, found, err := trilist.AggregateAt[int64](t.Context(), list, "Visits", "PerHour", at)
	if err != nil || !found {
		t.Fatalf("AggregateAt(Visits) = %v, %v", found, err)
	}
	if visits != 2 {
		t.Errorf("Visits = %d, want 2", visits)
	}
}

func TestParseRecordErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `nope`},
		{"no at", `{"spent": 1}`},
		{"at not a string", `{"at": 12, "spent": 1}`},
		{"at not a timestamp", `{"at": "yesterday", "spent": 1}`},
		{"non-numeric field", `{"at": "2020-05-05T10:11:12Z", "spent": "lots"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRecord([]byte(tt.line)); err == nil {
				t.Error("ParseRecord should have failed")
			}
		})
	}
}
