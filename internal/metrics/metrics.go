// Package metrics provides the Prometheus collectors for settlement operations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settlement outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics is the ledger's collector set, registered on its own registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration *prometheus.HistogramVec
	StorageConflicts   prometheus.Counter
	AuditFailures      prometheus.Counter
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "settlements_total",
			Help:      "Settlement operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		SettlementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "settlement_duration_seconds",
			Help:      "Settlement duration in seconds, including lock wait and retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StorageConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "storage_conflicts_total",
			Help:      "Settlement attempts retried after a storage conflict",
		}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "audit_failures_total",
			Help:      "Audit records that could not be written or published",
		}),
	}

	m.registry.MustRegister(
		m.SettlementsTotal,
		m.SettlementDuration,
		m.StorageConflicts,
		m.AuditFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveSettlement records one settlement attempt and its duration
func (m *Metrics) ObserveSettlement(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	m.SettlementDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// StorageConflict counts one retried conflict
func (m *Metrics) StorageConflict() {
	if m == nil {
		return
	}
	m.StorageConflicts.Inc()
}

// AuditFailure counts one lost audit record
func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome classifies a settlement error for the outcome label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrStorageConflict), errors.Is(err, domain.ErrLockTimeout):
		return OutcomeConflict
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientPosition),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrTradeDeleteForbidden):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
