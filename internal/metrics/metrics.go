package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Authentication metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status", "role"}, // success/failure, student/admin
	)

	LoginRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "login_rate_limited_total",
			Help: "Login attempts rejected by the rate limiter",
		},
	)

	SessionsDestroyed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_destroyed_total",
			Help: "Sessions invalidated by security checks or logout",
		},
		[]string{"reason"}, // idle, ua_mismatch, logout
	)

	// Attendance metrics
	AttendanceToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_toggles_total",
			Help: "Accepted attendance status writes",
		},
		[]string{"status"},
	)
)
