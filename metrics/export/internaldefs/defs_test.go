package internaldefs

import (
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestEveryCounterHasOneDefinition(t *testing.T) {
	m := goIdentity.NewMetrics(goIdentity.MetricsConfig{Enabled: true})
	snap := m.Snapshot()

	seen := make(map[goIdentity.MetricID]bool, len(CounterDefs))
	names := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("metric %d defined twice", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("name %s used twice", def.Name)
		}
		if !strings.HasPrefix(def.Name, "goidentity_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %s", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	for id := range snap.Counters {
		if !seen[id] {
			t.Fatalf("counter %d has no export definition", id)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(HistogramBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatal("bounds and suffixes disagree")
	}
}
