package ledger

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/epsync/internal/ir"
)

const namespace = "epsync"

// Metrics is a Sink that counts records and failures in its own registry.
type Metrics struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Reconciliation steps by entity type, action and dry-run flag.",
			},
			[]string{"entity_type", "action", "dry_run"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Entities that failed to reconcile, by entity type.",
			},
			[]string{"entity_type"},
		),
	}
	m.registry.MustRegister(m.transactions, m.failures)
	return m
}

// Record implements Sink.
func (m *Metrics) Record(rec ir.TransactionRecord) error {
	m.transactions.WithLabelValues(string(rec.EntityType), rec.Action.String(), strconv.FormatBool(rec.DryRun)).Inc()
	return nil
}

// Fail implements Sink.
func (m *Metrics) Fail(f Failure) error {
	m.failures.WithLabelValues(string(f.EntityType)).Inc()
	return nil
}

// Registry exposes the registry, e.g. for a promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format,
// for the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
