// Package jobmetrics instruments background jobs run by the worker.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the worker's collectors. A nil *Metrics is a no-op.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	purged   *prometheus.CounterVec
	labels   prometheus.Counter
}

// NewMetrics creates the job collectors on registerer. A nil registerer
// leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_pos_jobs_total",
			Help: "Job executions by job name and outcome.",
		}, []string{"job", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_pos_job_duration_seconds",
			Help:    "Duration of background job executions.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
		purged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_pos_jobs_purged_rows_total",
			Help: "Rows removed by maintenance jobs grouped by kind.",
		}, []string{"kind"}),
		labels: factory.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_pos_labels_rendered_total",
			Help: "Barcode labels rendered into PDF sheets.",
		}),
	}
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and returns err unchanged so handlers can
// `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddPurged records rows removed by a maintenance job.
func (m *Metrics) AddPurged(kind string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.purged.WithLabelValues(kind).Add(float64(rows))
}

// AddLabels records labels rendered into a sheet.
func (m *Metrics) AddLabels(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.labels.Add(float64(count))
}
