package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// dbStatsCollector reports sql.DBStats for one pool at scrape time.
type dbStatsCollector struct {
	stats func() sql.DBStats

	maxOpen   *prometheus.Desc
	open      *prometheus.Desc
	inUse     *prometheus.Desc
	idle      *prometheus.Desc
	waitCount *prometheus.Desc
	waitTime  *prometheus.Desc
}

func newDBStatsCollector(name string, stats func() sql.DBStats) *dbStatsCollector {
	labels := prometheus.Labels{"db": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db", metric), help, nil, labels)
	}
	return &dbStatsCollector{
		stats:     stats,
		maxOpen:   desc("max_open_connections", "Maximum number of open connections."),
		open:      desc("open_connections", "Established connections, in use or idle."),
		inUse:     desc("in_use_connections", "Connections currently in use."),
		idle:      desc("idle_connections", "Idle connections."),
		waitCount: desc("wait_count_total", "Connections waited for."),
		waitTime:  desc("wait_duration_seconds_total", "Time spent waiting for a connection."),
	}
}

func (c *dbStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpen
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitTime
}

func (c *dbStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(s.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(s.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue, s.WaitDuration.Seconds())
}
