// Package metrics exports flexrc statistics to Prometheus.
//
// Usage:
//
//	prometheus.MustRegister(metrics.NewCollector("myapp"))
//
// Exposed series (namespace "myapp", subsystem "flexrc"):
//
//	myapp_flexrc_records_allocated_total        counter
//	myapp_flexrc_records_freed_total            counter
//	myapp_flexrc_records_live                   gauge
//	myapp_flexrc_conversions_total{kind,result} counter
//	myapp_flexrc_fallback_copies_total          counter
//	myapp_flexrc_goroutine_identities           gauge
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/flexrc/flexrc"
	"github.com/kolkov/flexrc/internal/rc/tid"
)

const subsystem = "flexrc"

// Collector implements prometheus.Collector over flexrc.ReadStats.
// Values are read at scrape time; nothing is cached.
type Collector struct {
	stats      func() flexrc.Stats
	identities func() int

	allocatedDesc   *prometheus.Desc
	freedDesc       *prometheus.Desc
	liveDesc        *prometheus.Desc
	conversionsDesc *prometheus.Desc
	fallbacksDesc   *prometheus.Desc
	identitiesDesc  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over the process-wide flexrc counters.
func NewCollector(namespace string) *Collector {
	return newCollector(namespace, flexrc.ReadStats, tid.Default().Len)
}

func newCollector(namespace string, stats func() flexrc.Stats, identities func() int) *Collector {
	fq := func(name string) string {
		return prometheus.BuildFQName(namespace, subsystem, name)
	}
	return &Collector{
		stats:      stats,
		identities: identities,

		allocatedDesc: prometheus.NewDesc(fq("records_allocated_total"),
			"Records allocated.", nil, nil),
		freedDesc: prometheus.NewDesc(fq("records_freed_total"),
			"Records released after their last handle dropped.", nil, nil),
		liveDesc: prometheus.NewDesc(fq("records_live"),
			"Records allocated and not yet released.", nil, nil),
		conversionsDesc: prometheus.NewDesc(fq("conversions_total"),
			"In-place flavor conversions by kind (into, to) and result (ok, refused).",
			[]string{"kind", "result"}, nil),
		fallbacksDesc: prometheus.NewDesc(fq("fallback_copies_total"),
			"Payload copies made because an in-place conversion was refused.", nil, nil),
		identitiesDesc: prometheus.NewDesc(fq("goroutine_identities"),
			"Goroutine identities currently issued by the tracked scheme.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.allocatedDesc
	ch <- c.freedDesc
	ch <- c.liveDesc
	ch <- c.conversionsDesc
	ch <- c.fallbacksDesc
	ch <- c.identitiesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.allocatedDesc, s.Allocated)
	counter(c.freedDesc, s.Freed)
	counter(c.conversionsDesc, s.IntoOK, "into", "ok")
	counter(c.conversionsDesc, s.IntoFailed, "into", "refused")
	counter(c.conversionsDesc, s.ToOK, "to", "ok")
	counter(c.conversionsDesc, s.ToFailed, "to", "refused")
	counter(c.fallbacksDesc, s.Fallbacks)

	ch <- prometheus.MustNewConstMetric(c.liveDesc, prometheus.GaugeValue, float64(s.Live()))
	ch <- prometheus.MustNewConstMetric(c.identitiesDesc, prometheus.GaugeValue, float64(c.identities()))
}
