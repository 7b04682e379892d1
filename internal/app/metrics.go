package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics regroupe les collecteurs Prometheus du pipeline.
// Un *Metrics nil est valide (no-op), pratique pour les tests.
type Metrics struct {
	slotHeld        prometheus.Gauge
	queueDepth      prometheus.Gauge
	encodeDuration  *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	metadataRetries *prometheus.CounterVec
	backups         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		slotHeld: f.NewGauge(prometheus.GaugeOpts{
			Name: "aae_encode_slot_held",
			Help: "1 when a run holds the encode slot",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "aae_admission_queue_depth",
			Help: "Runs waiting for the encode slot",
		}),
		encodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aae_encode_duration_seconds",
			Help:    "Time taken to encode one quality",
			Buckets: prometheus.ExponentialBuckets(30, 2, 9),
		}, []string{"quality"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aae_runs_total",
			Help: "Finished runs by outcome",
		}, []string{"outcome"}),
		metadataRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aae_metadata_retries_total",
			Help: "AniList retries by reason",
		}, []string{"reason"}),
		backups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aae_backup_copies_total",
			Help: "Backup copies by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) setAdmission(depth int, held bool) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
	if held {
		m.slotHeld.Set(1)
	} else {
		m.slotHeld.Set(0)
	}
}

func (m *Metrics) observeEncode(quality string, d time.Duration) {
	if m == nil {
		return
	}
	m.encodeDuration.WithLabelValues(quality).Observe(d.Seconds())
}

func (m *Metrics) runFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) metadataRetry(reason string) {
	if m == nil {
		return
	}
	m.metadataRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) backupCopied(result string) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(result).Inc()
}
