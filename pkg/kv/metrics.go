package kv

import (
	"time"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vkv"

// Outcomes of an operation
const (
	outcomeOK     = "ok"
	outcomeAbsent = "absent"
	outcomeError  = "error"
)

type metrics struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	sessions *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Number of store operations, by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "sessions_opened_total",
			Help:      "Number of sessions opened, by access mode.",
		}, []string{"mode"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.ops, err = register(reg, m.ops); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.sessions, err = register(reg, m.sessions); err != nil {
		return nil, err
	}
	return m, nil
}

// register a collector, or reuse the one registered by another store
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	var zero T
	return zero, status.ErrEngine.Wrapf("registering metrics: %w", err)
}

func (m *metrics) observe(op string, start time.Time, found bool, err error) {
	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeError
	case !found:
		outcome = outcomeAbsent
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metrics) sessionOpened(writable bool) {
	mode := "readonly"
	if writable {
		mode = "writable"
	}
	m.sessions.WithLabelValues(mode).Inc()
}
