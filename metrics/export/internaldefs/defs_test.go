package internaldefs

import (
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestCounterDefsAreUniqueAndPrefixed(t *testing.T) {
	names := map[string]bool{}
	ids := map[goSession.MetricID]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "gosession_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate counter %q", def.Name)
		}
		if def.ID == goSession.MetricRefreshLatency {
			t.Fatal("latency histogram exported as counter")
		}
		names[def.Name] = true
		ids[def.ID] = true
	}
}

func TestHistogramBucketLabels(t *testing.T) {
	labels := HistogramBucketLabels()
	if len(labels) != len(NormalizeBuckets(nil)) {
		t.Fatalf("expected one label per bucket, got %d", len(labels))
	}
	if labels[0] != "0.005" || labels[len(labels)-1] != "+Inf" {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
