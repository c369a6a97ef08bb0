package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Queue event instrument and its attribute values.
const (
	queueEventsName = "gosession_queue_events_total"

	queueAudit     = "audit"
	queueBroadcast = "broadcast"

	outcomeDelivered = "delivered"
	outcomeDropped   = "dropped"
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDelivered() uint64
	AuditDropped() uint64
	BroadcastDropped() uint64
}

// latencyInstruments exposes one histogram as a bucket gauge keyed by "le" plus a count.
type latencyInstruments struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes session counters through asynchronous OTel instruments.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters    map[goSession.MetricID]metric.Int64ObservableCounter
	latencies   []latencyInstruments
	queueEvents metric.Int64ObservableCounter

	bucketAttrs []metric.ObserveOption
	queueAttrs  map[[2]string]metric.ObserveOption
}

func NewOTelExporter(meter metric.Meter, m *goSession.Manager) (*OTelExporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, m)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:     source,
		counters:   make(map[goSession.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		queueAttrs: make(map[[2]string]metric.ObserveOption, 3),
	}
	for _, le := range internaldefs.HistogramBucketLabels() {
		e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributes(attribute.String("le", le)))
	}
	for _, key := range [][2]string{
		{queueAudit, outcomeDelivered},
		{queueAudit, outcomeDropped},
		{queueBroadcast, outcomeDropped},
	} {
		e.queueAttrs[key] = metric.WithAttributes(
			attribute.String("queue", key[0]),
			attribute.String("outcome", key[1]),
		)
	}

	observables, err := e.createInstruments(meter)
	if err != nil {
		return nil, err
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) createInstruments(meter metric.Meter) ([]metric.Observable, error) {
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
		)
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge for %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
		)
		if err != nil {
			return nil, fmt.Errorf("create count gauge for %s: %w", def.Name, err)
		}
		e.latencies = append(e.latencies, latencyInstruments{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	queue, err := meter.Int64ObservableCounter(queueEventsName,
		metric.WithDescription("Events handled by the audit and invalidation queues, by outcome."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create queue counter: %w", err)
	}
	e.queueEvents = queue
	return append(observables, queue), nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[l.id]))
		for i, attrs := range e.bucketAttrs {
			o.ObserveInt64(l.buckets, int64(cumulative[i]), attrs)
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.queueEvents, int64(e.source.AuditDelivered()), e.queueAttrs[[2]string{queueAudit, outcomeDelivered}])
	o.ObserveInt64(e.queueEvents, int64(e.source.AuditDropped()), e.queueAttrs[[2]string{queueAudit, outcomeDropped}])
	o.ObserveInt64(e.queueEvents, int64(e.source.BroadcastDropped()), e.queueAttrs[[2]string{queueBroadcast, outcomeDropped}])
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
