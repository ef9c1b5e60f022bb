package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the console session host.
type Metrics struct {
	// Record metrics
	ProcessesActive prometheus.Gauge
	OutputBytes     *prometheus.CounterVec
	AppendErrors    prometheus.Counter

	// Persistence metrics
	SavesTotal      *prometheus.CounterVec
	SaveDuration    prometheus.Histogram
	RecordsRestored prometheus.Counter
	RecordsSkipped  prometheus.Counter

	// Reaper metrics
	OrphansDeleted prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		ProcessesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "termstate_console_processes_active",
			Help: "Number of console process records in the session",
		}),
		OutputBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termstate_output_bytes_total",
				Help: "Bytes of process output appended, by buffer mode",
			},
			[]string{"mode"},
		),
		AppendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termstate_append_errors_total",
			Help: "Failed output appends",
		}),
		SavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termstate_metadata_saves_total",
				Help: "Metadata save attempts, by result",
			},
			[]string{"result"},
		),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "termstate_metadata_save_duration_seconds",
			Help:    "Time spent encoding and saving metadata",
			Buckets: prometheus.DefBuckets,
		}),
		RecordsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termstate_records_restored_total",
			Help: "Console process records restored from the metadata store",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termstate_records_skipped_total",
			Help: "Restored records dropped because their handle was already registered",
		}),
		OrphansDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termstate_orphaned_logs_deleted_total",
			Help: "Log files deleted because no record owned them",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.ProcessesActive,
		m.OutputBytes,
		m.AppendErrors,
		m.SavesTotal,
		m.SaveDuration,
		m.RecordsRestored,
		m.RecordsSkipped,
		m.OrphansDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
