package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by result (success|failure|otp_required).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	// OTPIssued counts issued one-time codes by trigger (signup|signin|resend).
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_otp_issued_total",
			Help: "Total number of one-time codes issued",
		},
		[]string{"trigger"},
	)

	// OTPVerifications counts verification attempts by outcome
	// (success|not_found|mismatch|expired|already_used).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_otp_verifications_total",
			Help: "Total number of one-time code verification attempts",
		},
		[]string{"outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
