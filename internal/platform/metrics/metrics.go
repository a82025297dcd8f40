// Package metrics holds all Prometheus metrics for the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	IdentitiesRegistered prometheus.Counter
	WalletsMigrated      prometheus.Counter
	CertificatesIssued   prometheus.Counter
	CertificatesRevoked  prometheus.Counter

	// Verifications is labeled by the terminal result of the check.
	Verifications *prometheus.CounterVec

	// LedgerCalls tracks every ledger round trip by operation and outcome.
	LedgerCalls       *prometheus.CounterVec
	LedgerCallSeconds *prometheus.HistogramVec

	SweepHealed  prometheus.Counter
	SweepFlagged prometheus.Counter
	SweepRuns    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_identities_registered_total",
			Help: "Total number of identities registered.",
		}),
		WalletsMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_wallets_migrated_total",
			Help: "Total number of wallet migrations applied.",
		}),
		CertificatesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_certificates_issued_total",
			Help: "Total number of certificates anchored and recorded.",
		}),
		CertificatesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_certificates_revoked_total",
			Help: "Total number of certificates revoked.",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credlock_verifications_total",
			Help: "Total number of verification checks by result.",
		}, []string{"result"}),
		LedgerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credlock_ledger_calls_total",
			Help: "Total number of ledger calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		LedgerCallSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credlock_ledger_call_duration_seconds",
			Help:    "Ledger call latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		SweepHealed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_sweep_healed_total",
			Help: "Total number of orphaned anchors healed by the reconciliation sweep.",
		}),
		SweepFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_sweep_flagged_total",
			Help: "Total number of local records flagged as unconfirmed by the sweep.",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credlock_sweep_runs_total",
			Help: "Total number of reconciliation sweep executions.",
		}),
	}
}

// ObserveLedgerCall records one ledger round trip.
func (m *Metrics) ObserveLedgerCall(operation, outcome string, elapsed time.Duration) {
	m.LedgerCalls.WithLabelValues(operation, outcome).Inc()
	m.LedgerCallSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}
