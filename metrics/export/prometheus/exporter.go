package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDelivered() uint64
	AuditDropped() uint64
	BroadcastDropped() uint64
}

type counterDesc struct {
	id   goSession.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   goSession.MetricID
	desc *prometheus.Desc
}

// PrometheusExporter is a [prometheus.Collector] over a Manager's counters.
type PrometheusExporter struct {
	source           metricsSource
	counters         []counterDesc
	histograms       []histogramDesc
	auditDelivered   *prometheus.Desc
	auditDropped     *prometheus.Desc
	broadcastDropped *prometheus.Desc
	registry         *prometheus.Registry
}

// NewPrometheusExporter creates an exporter that reads from m.
func NewPrometheusExporter(m *goSession.Manager) *PrometheusExporter {
	return NewPrometheusExporterFromSource(m)
}

// NewPrometheusExporterFromSource creates an exporter from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		auditDelivered: prometheus.NewDesc("gosession_audit_delivered_total",
			"Audit events handed to the audit sink.", nil, nil),
		auditDropped: prometheus.NewDesc("gosession_audit_dropped_total",
			"Audit events dropped under dispatcher backpressure.", nil, nil),
		broadcastDropped: prometheus.NewDesc("gosession_broadcast_dropped_total",
			"Invalidation events lost on a full bus or subscriber.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		p.counters = append(p.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		p.histograms = append(p.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}

	p.registry = prometheus.NewRegistry()
	p.registry.MustRegister(p)
	return p
}

// Describe implements prometheus.Collector.
func (p *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
	for _, h := range p.histograms {
		ch <- h.desc
	}
	ch <- p.auditDelivered
	ch <- p.auditDropped
	ch <- p.broadcastDropped
}

// Collect implements prometheus.Collector. Nothing is emitted while metrics are
// disabled on the source.
func (p *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	if p.source == nil {
		return
	}
	snapshot := p.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(snapshot.Counters[c.id]))
	}
	for _, h := range p.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[i]
		}
		// The snapshot has no sum; report zero rather than a guess.
		ch <- prometheus.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(p.auditDelivered, prometheus.CounterValue, float64(p.source.AuditDelivered()))
	ch <- prometheus.MustNewConstMetric(p.auditDropped, prometheus.CounterValue, float64(p.source.AuditDropped()))
	ch <- prometheus.MustNewConstMetric(p.broadcastDropped, prometheus.CounterValue, float64(p.source.BroadcastDropped()))
}

// Register adds the exporter to reg, for callers that keep their own registry.
func (p *PrometheusExporter) Register(reg prometheus.Registerer) error {
	return reg.Register(p)
}

// Handler serves the exporter's private registry in the Prometheus text format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		Timeout: 5 * time.Second,
	})
}
