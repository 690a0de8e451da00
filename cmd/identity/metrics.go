package identity

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides observability for the record service.
// Tracks operation outcomes, duplicate rejections by field, and latency.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duplicates *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates the record metrics and registers them on reg.
// Pass a private registry in tests; the runtime passes its own registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_record_operations_total",
			Help: "Record service operations by op and result",
		}, []string{"op", "result"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idvault_record_duplicates_total",
			Help: "Create/update requests rejected for a duplicate unique field",
		}, []string{"field"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idvault_record_operation_duration_seconds",
			Help:    "Duration of record service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Operations, m.Duplicates, m.Duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// observe records one finished operation. Call with time.Now() taken at the start.
func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if field, ok := DuplicateField(err); ok {
		m.Duplicates.WithLabelValues(field).Inc()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsInvalidInput(err):
		return "invalid_input"
	case IsDuplicate(err):
		return "duplicate"
	case IsImmutable(err):
		return "immutable"
	case IsNotFound(err):
		return "not_found"
	case IsEncryptionConfig(err):
		return "encryption_config"
	case IsDecryption(err):
		return "decryption"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
