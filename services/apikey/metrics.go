package apikey

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verifyAccepts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apikey_verify_accepts_total",
		Help: "Verifications that returned an entity.",
	})
	// Reject reasons are internal-only telemetry; the caller-visible result
	// stays collapsed per the propagation policy.
	verifyRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apikey_verify_rejects_total",
		Help: "Verifications rejected, labelled by internal reason.",
	}, []string{"reason"})
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apikey_verify_cache_hits_total",
		Help: "Verification cache hits.",
	})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apikey_verify_cache_miss_total",
		Help: "Verification cache misses.",
	})
)

func rejectReasonLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case err == ErrKeyNotProvided:
		return "not_provided"
	case err == ErrMalformedKey:
		return "malformed"
	case err == ErrKeyNotFound:
		return "not_found"
	case err == ErrSecretMismatch:
		return "secret_mismatch"
	case err == ErrKeyInactive:
		return "inactive"
	case err == ErrKeyExpired:
		return "expired"
	case err == ErrMissingScopes:
		return "missing_scopes"
	default:
		return "error"
	}
}
