// Package metrics holds the Prometheus collectors of the audit service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job names
const (
	JobLoadSync = "load_sync"
	JobImport   = "import"
)

// JobMetrics records duration and outcome of reconciliation jobs. A nil
// *JobMetrics is valid and records nothing.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	records  *prometheus.CounterVec
}

// NewJobMetrics registers the job collectors on reg
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return nil
	}
	m := &JobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invoice_audit",
			Name:      "job_duration_seconds",
			Help:      "Duration of reconciliation jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoice_audit",
			Name:      "job_success_total",
			Help:      "Successful reconciliation jobs.",
		}, []string{"job"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoice_audit",
			Name:      "job_failure_total",
			Help:      "Failed reconciliation jobs.",
		}, []string{"job"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoice_audit",
			Name:      "records_written_total",
			Help:      "Audit records inserted or updated, by job and outcome.",
		}, []string{"job", "outcome"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure, m.records)
	return m
}

// Observe records one run of job that started at start
func (m *JobMetrics) Observe(job string, start time.Time, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failure.WithLabelValues(job).Inc()
		return
	}
	m.success.WithLabelValues(job).Inc()
}

// AddRecords counts records written by job, e.g. outcome "inserted"
func (m *JobMetrics) AddRecords(job, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(normalizeLabel(job), outcome).Add(float64(n))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
