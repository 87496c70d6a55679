package otel

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Point is one collected data point.
type Point struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      int64             `json:"value"`
}

// Collector owns an in-process MeterProvider with a manual reader, for
// deployments that pull metrics over HTTP instead of pushing them.
type Collector struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	exporter *Exporter
}

// NewCollector registers an Exporter for source on a private provider.
func NewCollector(source metricsSource) (*Collector, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := NewFromSource(provider.Meter("github.com/MrEthical07/goEnroll"), source)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &Collector{reader: reader, provider: provider, exporter: exp}, nil
}

// Collect runs one collection cycle and flattens the result, sorted by
// name and attributes.
func (c *Collector) Collect(ctx context.Context) ([]Point, error) {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	var out []Point
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				out = appendPoints(out, m.Name, data.DataPoints)
			case metricdata.Gauge[int64]:
				out = appendPoints(out, m.Name, data.DataPoints)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return attrKey(out[i]) < attrKey(out[j])
	})
	return out, nil
}

// Handler serves Collect as JSON.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		points, err := c.Collect(r.Context())
		if err != nil {
			http.Error(w, "metrics collection failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(points)
	})
}

// Shutdown unregisters the exporter and stops the provider.
func (c *Collector) Shutdown(ctx context.Context) error {
	if err := c.exporter.Close(); err != nil {
		return err
	}
	return c.provider.Shutdown(ctx)
}

func appendPoints(out []Point, name string, dps []metricdata.DataPoint[int64]) []Point {
	for _, dp := range dps {
		p := Point{Name: name, Value: dp.Value}
		if dp.Attributes.Len() > 0 {
			p.Attributes = make(map[string]string, dp.Attributes.Len())
			for _, kv := range dp.Attributes.ToSlice() {
				p.Attributes[string(kv.Key)] = kv.Value.Emit()
			}
		}
		out = append(out, p)
	}
	return out
}

func attrKey(p Point) string {
	keys := make([]string, 0, len(p.Attributes))
	for k, v := range p.Attributes {
		keys = append(keys, k+"="+v)
	}
	sort.Strings(keys)
	var s string
	for _, k := range keys {
		s += k + ","
	}
	return s
}
