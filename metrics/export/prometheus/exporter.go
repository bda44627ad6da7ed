package prometheus

import (
	"net/http"

	campusAuth "github.com/MrEthical07/campusAuth"
	"github.com/MrEthical07/campusAuth/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() campusAuth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter is a prometheus.Collector over an engine's counters and latency
// histograms. Values are read from a fresh snapshot on every scrape.
type Exporter struct {
	source       metricsSource
	counters     []*prom.Desc
	histograms   []*prom.Desc
	auditDropped *prom.Desc
}

// NewExporter creates an exporter reading from engine.
func NewExporter(engine *campusAuth.Engine) *Exporter {
	return NewExporterFromSource(engine)
}

// NewExporterFromSource creates an exporter from any snapshot source.
func NewExporterFromSource(source metricsSource) *Exporter {
	e := &Exporter{
		source:     source,
		counters:   make([]*prom.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prom.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc("campus_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.", nil, nil),
	}
	for i, def := range internaldefs.CounterDefs {
		e.counters[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		e.histograms[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	return e
}

func (e *Exporter) Describe(ch chan<- *prom.Desc) {
	for _, d := range e.counters {
		ch <- d
	}
	for _, d := range e.histograms {
		ch <- d
	}
	ch <- e.auditDropped
}

// Collect emits nothing when the engine runs with metrics disabled.
func (e *Exporter) Collect(ch chan<- prom.Metric) {
	if e == nil || e.source == nil {
		return
	}
	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- prom.MustNewConstMetric(e.counters[i], prom.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.UpperBounds))
		for j, le := range internaldefs.UpperBounds {
			buckets[le] = cumulative[j]
		}
		// Snapshots carry no sum.
		ch <- prom.MustNewConstHistogram(e.histograms[i], cumulative[internaldefs.BucketCount-1], 0, buckets)
	}

	ch <- prom.MustNewConstMetric(e.auditDropped, prom.CounterValue, float64(dropped))
}

// Handler serves the exporter from a private registry, so nothing lands in
// prometheus.DefaultRegisterer.
func (e *Exporter) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(e)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
