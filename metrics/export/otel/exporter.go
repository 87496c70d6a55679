package otel

import (
	"context"
	"errors"
	"fmt"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goEnroll.MetricsSnapshot
	AuditDropped() uint64
}

type series struct {
	id   goEnroll.MetricID
	attr metric.ObserveOption
}

type family struct {
	counter metric.Int64ObservableCounter
	series  []series
}

// Exporter observes engine counters as one instrument per flow, with
// the flow's labels carried as attributes.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	families     []family
	latency      metric.Int64ObservableGauge
	latencyAttrs [8]metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// New binds engine to meter.
func New(meter metric.Meter, engine *goEnroll.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource binds any snapshot source to meter. Close unregisters the
// collection callback.
func NewFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	observables := make([]metric.Observable, 0, len(internaldefs.Families)+2)

	for _, def := range internaldefs.Families {
		counter, err := meter.Int64ObservableCounter(def.Instrument, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Instrument, err)
		}
		f := family{counter: counter, series: make([]series, 0, len(def.Series))}
		for _, s := range def.Series {
			kvs := make([]attribute.KeyValue, 0, len(s.Labels))
			for _, l := range s.Labels {
				kvs = append(kvs, attribute.String(l.Key, l.Value))
			}
			f.series = append(f.series, series{id: s.ID, attr: metric.WithAttributeSet(attribute.NewSet(kvs...))})
		}
		e.families = append(e.families, f)
		observables = append(observables, counter)
	}

	lat := internaldefs.ValidateLatency
	latency, err := meter.Int64ObservableGauge(lat.Instrument,
		metric.WithDescription(lat.Help+" Cumulative count per upper bound."),
	)
	if err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", lat.Instrument, err)
	}
	for i, le := range internaldefs.LatencyBounds {
		e.latencyAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}
	e.latency = latency
	observables = append(observables, latency)

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedInstrument,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedInstrument, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			o.ObserveInt64(f.counter, int64(snapshot.Counters[s.id]), s.attr)
		}
	}
	buckets := internaldefs.CumulativeBuckets(snapshot.Histograms[internaldefs.ValidateLatency.ID])
	for i, n := range buckets {
		o.ObserveInt64(e.latency, int64(n), e.latencyAttrs[i])
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close stops observing the source.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
