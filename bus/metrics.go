package bus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports registry counters as Prometheus metrics, read at scrape
// time.
type Collector struct {
	registry *Registry

	publishes *prometheus.Desc
	timeouts  *prometheus.Desc
	invalid   *prometheus.Desc
	delivered *prometheus.Desc
	dropped   *prometheus.Desc
	depth     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(r *Registry, namespace string) *Collector {
	channel := []string{"channel"}
	subscriber := []string{"subscriber"}
	return &Collector{
		registry:  r,
		publishes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "publishes_total"), "Messages published per channel.", channel, nil),
		timeouts:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "lock_timeouts_total"), "Channel lock acquisitions that timed out.", channel, nil),
		invalid:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "invalid_total"), "Publishes rejected by the channel validator.", channel, nil),
		delivered: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "delivered_total"), "Messages queued per subscriber.", subscriber, nil),
		dropped:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "dropped_total"), "Messages dropped on a full subscriber queue.", subscriber, nil),
		depth:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", "queue_depth"), "Messages waiting in a subscriber queue.", subscriber, nil),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.publishes
	descs <- c.timeouts
	descs <- c.invalid
	descs <- c.delivered
	descs <- c.dropped
	descs <- c.depth
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, ch := range c.registry.Channels() {
		stats := ch.Stats()
		metrics <- prometheus.MustNewConstMetric(c.publishes, prometheus.CounterValue, float64(stats.Publishes), ch.name)
		metrics <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.LockTimeouts), ch.name)
		metrics <- prometheus.MustNewConstMetric(c.invalid, prometheus.CounterValue, float64(stats.Invalid), ch.name)
	}
	for _, sub := range c.registry.Subscribers() {
		metrics <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(sub.Delivered()), sub.name)
		metrics <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(sub.Dropped()), sub.name)
		metrics <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(sub.Len()), sub.name)
	}
}
