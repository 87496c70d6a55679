package internaldefs

import (
	"strings"
	"testing"

	goEnroll "github.com/MrEthical07/goEnroll"
)

func TestFamiliesCoverEveryCounterOnce(t *testing.T) {
	seen := map[goEnroll.MetricID]string{}
	for _, f := range Families {
		if !strings.HasPrefix(f.Name, "goenroll_") || !strings.HasSuffix(f.Name, "_total") {
			t.Fatalf("family %s does not follow naming", f.Name)
		}
		if !strings.HasPrefix(f.Instrument, "goenroll.") {
			t.Fatalf("instrument %s does not follow naming", f.Instrument)
		}
		labelSets := map[string]bool{}
		for _, s := range f.Series {
			if prev, ok := seen[s.ID]; ok {
				t.Fatalf("metric %d exported by %s and %s", s.ID, prev, f.Name)
			}
			seen[s.ID] = f.Name

			var parts []string
			for _, l := range s.Labels {
				parts = append(parts, l.Key+"="+l.Value)
			}
			key := strings.Join(parts, ",")
			if labelSets[key] {
				t.Fatalf("family %s repeats labels %s", f.Name, key)
			}
			labelSets[key] = true
		}
	}

	for id := goEnroll.MetricScanSuccess; id < goEnroll.MetricValidateLatency; id++ {
		if _, ok := seen[id]; !ok {
			t.Fatalf("metric %d is not exported", id)
		}
	}
	if _, ok := seen[ValidateLatency.ID]; ok {
		t.Fatalf("latency histogram must not be exported as a counter")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 0, 2})
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 3}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
	if CumulativeBuckets(nil) != ([8]uint64{}) {
		t.Fatalf("expected zero buckets for nil input")
	}
}
