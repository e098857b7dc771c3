// Package metrics exposes job pool activity as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jdziat/simple-job-pool/pkg/core"
	"github.com/jdziat/simple-job-pool/pkg/queue"
)

const MetricPrefix = "jobpool_"

var (
	queueDepthDesc = prometheus.NewDesc(
		MetricPrefix+"queue_depth",
		"Number of job ids waiting in the FIFO",
		nil,
		nil,
	)
	jobsDesc = prometheus.NewDesc(
		MetricPrefix+"jobs",
		"Number of jobs in the registry by status",
		[]string{"status"},
		nil,
	)
)

// Metrics holds the counters fed by queue hooks.
type Metrics struct {
	Submitted prometheus.Counter
	Completed prometheus.Counter
	Retried   prometheus.Counter
	Failed    prometheus.Counter
	Duration  *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	return &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_submitted_total",
			Help: "Total number of submitted jobs",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_completed_total",
			Help: "Total number of jobs that completed",
		}),
		Retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_retried_total",
			Help: "Total number of failed attempts that were requeued",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_failed_total",
			Help: "Total number of jobs that failed permanently",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPrefix + "job_duration_seconds",
			Help:    "Duration of the final attempt of a job",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),
	}
}

// Register creates the collectors, registers them with reg and hooks them
// into q. On error nothing stays registered and no hooks are attached.
func Register(reg prometheus.Registerer, q *queue.Queue) (*Metrics, error) {
	m := newMetrics()
	collectors := []prometheus.Collector{
		m.Submitted,
		m.Completed,
		m.Retried,
		m.Failed,
		m.Duration,
		&queueCollector{queue: q},
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return nil, err
		}
	}

	q.OnSubmit(func(context.Context, core.Job) {
		m.Submitted.Inc()
	})
	q.OnJobComplete(func(_ context.Context, job core.Job) {
		m.Completed.Inc()
		m.observe(job)
	})
	q.OnRetry(func(context.Context, core.Job, int, string) {
		m.Retried.Inc()
	})
	q.OnJobFail(func(_ context.Context, job core.Job, _ string) {
		m.Failed.Inc()
		m.observe(job)
	})
	return m, nil
}

func (m *Metrics) observe(job core.Job) {
	if job.StartedAt == nil || job.FinishedAt == nil {
		return
	}
	m.Duration.WithLabelValues(string(job.Status)).
		Observe(job.FinishedAt.Sub(*job.StartedAt).Seconds())
}

// queueCollector reports gauges from a Stats snapshot at scrape time.
type queueCollector struct {
	queue *queue.Queue
}

func (c *queueCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- queueDepthDesc
	desc <- jobsDesc
}

func (c *queueCollector) Collect(metrics chan<- prometheus.Metric) {
	stats := c.queue.Stats()
	metrics <- prometheus.MustNewConstMetric(queueDepthDesc, prometheus.GaugeValue, float64(stats.QueueDepth))
	for _, status := range core.Statuses {
		metrics <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue, float64(stats.Jobs[status]), string(status))
	}
}
