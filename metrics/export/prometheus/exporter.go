package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goEnroll.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics as labelled Prometheus families.
type Exporter struct {
	source metricsSource
}

// New returns an exporter reading from engine.
func New(engine *goEnroll.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource returns an exporter over any snapshot source.
func NewFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the text exposition format.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.Encode(w)
	})
}

// Render returns the current exposition as a string.
func (e *Exporter) Render() string {
	var b strings.Builder
	e.Encode(&b)
	return b.String()
}

// Encode writes one family per flow, the latency histogram and the
// dropped audit counter.
func (e *Exporter) Encode(w io.Writer) {
	if e == nil || e.source == nil {
		return
	}
	snapshot := e.source.MetricsSnapshot()

	for _, f := range internaldefs.Families {
		header(w, f.Name, f.Help, "counter")
		for _, s := range f.Series {
			fmt.Fprintf(w, "%s%s %d\n", f.Name, labels(s.Labels), snapshot.Counters[s.ID])
		}
	}

	lat := internaldefs.ValidateLatency
	buckets := internaldefs.CumulativeBuckets(snapshot.Histograms[lat.ID])
	header(w, lat.Name, lat.Help, "histogram")
	for i, le := range internaldefs.LatencyBounds {
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", lat.Name, le, buckets[i])
	}
	// Snapshots keep bucket counts only.
	fmt.Fprintf(w, "%s_sum 0\n%s_count %d\n", lat.Name, lat.Name, buckets[len(buckets)-1])

	header(w, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	fmt.Fprintf(w, "%s %d\n", internaldefs.AuditDroppedName, e.source.AuditDropped())
}

func header(w io.Writer, name, help, kind string) {
	help = strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func labels(ls []internaldefs.Label) string {
	if len(ls) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ls))
	for _, l := range ls {
		parts = append(parts, fmt.Sprintf("%s=%q", l.Key, l.Value))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
