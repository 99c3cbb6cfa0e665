package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for registry mutations. All counters
// are monotonic, matching the registry's no-delete lifecycle.
type Metrics struct {
	IdentitiesCreated  prometheus.Counter
	CredentialsIssued  prometheus.Counter
	CredentialsRevoked prometheus.Counter
	ReputationUpdates  prometheus.Counter
	IssuerSetChanges   prometheus.Counter
}

// New creates and registers all registry metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_identities_created_total",
			Help: "Total number of identities created in the registry",
		}),
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_credentials_revoked_total",
			Help: "Total number of credential revocations, including repeats",
		}),
		ReputationUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_reputation_updates_total",
			Help: "Total number of reputation engine invocations",
		}),
		IssuerSetChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_issuer_set_changes_total",
			Help: "Total number of trusted issuer additions and removals",
		}),
	}
}
