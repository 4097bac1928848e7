// Package metrics provides Prometheus metrics for the preprocessing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for batch preprocessing
// operations. One instance is shared across workers; all underlying
// collectors are safe for concurrent use.
type PipelineMetrics struct {
	registry *prometheus.Registry

	RecordingsProcessed *prometheus.CounterVec // status: success|failed|skipped
	FailureReasons      *prometheus.CounterVec // category of the failure
	ChannelsProcessed   *prometheus.CounterVec // group label
	ChannelsDropped     *prometheus.CounterVec // reason: cap|filter|read
	SyncAdjustments     *prometheus.CounterVec // action: none|truncate|pad
	ProcessingDuration  *prometheus.HistogramVec
}

// NewPipelineMetrics creates and registers the pipeline metrics on the
// given registry. A nil registry creates a private one.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &PipelineMetrics{
		registry: registry,
		RecordingsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psgprep_recordings_total",
			Help: "Recordings processed by final status",
		}, []string{"status"}),
		FailureReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psgprep_recording_failures_total",
			Help: "Recording failures by error category",
		}, []string{"category"}),
		ChannelsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psgprep_channels_processed_total",
			Help: "Channels surviving conditioning, by output group",
		}, []string{"group"}),
		ChannelsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psgprep_channels_dropped_total",
			Help: "Channels dropped during conditioning, by reason",
		}, []string{"reason"}),
		SyncAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psgprep_sync_adjustments_total",
			Help: "Annotation synchronization outcomes, by action",
		}, []string{"action"}),
		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psgprep_recording_duration_seconds",
			Help:    "Wall time spent conditioning one recording",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"cohort"}),
	}

	collectors := []prometheus.Collector{
		m.RecordingsProcessed,
		m.FailureReasons,
		m.ChannelsProcessed,
		m.ChannelsDropped,
		m.SyncAdjustments,
		m.ProcessingDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the backing registry, for gathering at end of batch.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}
