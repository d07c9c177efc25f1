package wal

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "valuestore_wal"

// metrics groups the collectors updated by the writer and producers.
type metrics struct {
	recordsAppended prometheus.Counter
	bytesWritten    prometheus.Counter
	fsyncs          prometheus.Counter
	rotations       prometheus.Counter
	compressions    *prometheus.CounterVec
	queueFull       prometheus.Counter
	lastForced      prometheus.Gauge
	lastAppended    prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		recordsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_appended_total",
			Help:      "Mint records appended to the active segment.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to segment files.",
		}),
		fsyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fsyncs_total",
			Help:      "Forces of the active segment to stable storage.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "segments_rotated_total",
			Help:      "Segments finalized because they reached the size limit.",
		}),
		compressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "compressions_total",
			Help:      "Finalized segment compressions, by result.",
		}, []string{"result"}),
		queueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queue_full_total",
			Help:      "LogMint calls that found the queue full.",
		}),
		lastForced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_forced_lsn",
			Help:      "Highest LSN known to be on stable storage.",
		}),
		lastAppended: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_appended_lsn",
			Help:      "Highest LSN handed to the active segment.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recordsAppended,
		m.bytesWritten,
		m.fsyncs,
		m.rotations,
		m.compressions,
		m.queueFull,
		m.lastForced,
		m.lastAppended,
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register metrics")
		}
	}
	return nil
}

func (m *metrics) unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}
