// Package metrics holds the Prometheus collectors for the share service.
// Every method is safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	UploadsTotal     *prometheus.CounterVec   // zeroshare_uploads_total{result}
	UploadBytesTotal prometheus.Counter       // zeroshare_upload_bytes_total
	FetchesTotal     *prometheus.CounterVec   // zeroshare_fetches_total{outcome}
	ChecksTotal      *prometheus.CounterVec   // zeroshare_checks_total{result}
	SweepRecords     *prometheus.CounterVec   // zeroshare_sweep_records_total{action}
	OrphansTotal     *prometheus.CounterVec   // zeroshare_orphans_total{source}
	RequestDuration  *prometheus.HistogramVec // zeroshare_http_request_duration_seconds{route,method}
}

// New registers the collectors on registry, or on the default registerer
// when registry is nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zeroshare_uploads_total",
			Help: "Uploads by result",
		}, []string{"result"}),

		UploadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "zeroshare_upload_bytes_total",
			Help: "Ciphertext bytes accepted by successful uploads",
		}),

		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zeroshare_fetches_total",
			Help: "Fetch attempts by outcome",
		}, []string{"outcome"}),

		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zeroshare_checks_total",
			Help: "Check probes by result",
		}, []string{"result"}),

		SweepRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zeroshare_sweep_records_total",
			Help: "Records visited by the expiry sweeper by action taken",
		}, []string{"action"}),

		OrphansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zeroshare_orphans_total",
			Help: "Blobs left without metadata, by the path that orphaned them",
		}, []string{"source"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zeroshare_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Upload records an upload attempt; bytes only count on success.
func (m *Metrics) Upload(result string, bytes int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}

func (m *Metrics) Fetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Check(result string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SweepRecord(action string) {
	if m == nil {
		return
	}
	m.SweepRecords.WithLabelValues(action).Inc()
}

func (m *Metrics) Orphan(source string) {
	if m == nil {
		return
	}
	m.OrphansTotal.WithLabelValues(source).Inc()
}

// ObserveRequest records one HTTP request under its route pattern.
func (m *Metrics) ObserveRequest(route, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
