package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CredentialsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_credentials_issued_total",
			Help: "Credentials minted, by token kind.",
		},
		[]string{"kind"},
	)

	PasscodesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_passcodes_issued_total",
			Help: "One-time passcodes issued, by purpose.",
		},
		[]string{"purpose"},
	)

	PasscodeVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_passcode_verifications_total",
			Help: "Passcode verification attempts, by purpose and result.",
		},
		[]string{"purpose", "result"},
	)

	TokensRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_revoked_total",
			Help: "Tokens recorded in the revocation ledger, by kind.",
		},
		[]string{"kind"},
	)

	RevocationsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocations_pruned_total",
		Help: "Expired revocation-ledger entries removed by the prune sweep.",
	})

	LoginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_failures_total",
		Help: "Failed password authentications.",
	})
)

// Init registers all collectors with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		CredentialsIssued,
		PasscodesIssued,
		PasscodeVerifications,
		TokensRevoked,
		RevocationsPruned,
		LoginFailures,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
