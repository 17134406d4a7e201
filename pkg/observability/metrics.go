package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the access core
type Metrics struct {
	// Authentication metrics
	LoginAttemptsTotal    *prometheus.CounterVec
	RegistrationsTotal    *prometheus.CounterVec
	SessionRefreshesTotal *prometheus.CounterVec
	LivenessProbesTotal   *prometheus.CounterVec
	ActiveSessions        prometheus.Gauge

	// Rate limiter metrics
	RateLimitChecksTotal   *prometheus.CounterVec
	RateLimitDenialsTotal  *prometheus.CounterVec
	RateLimitStoreFailures prometheus.Counter

	// Tenant resolution metrics
	TenantResolutionsTotal *prometheus.CounterVec
	TenantCacheHitsTotal   prometheus.Counter

	// Access guard metrics
	GuardDecisionsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_registrations_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_session_refreshes_total",
				Help: "Session refresh operations by outcome",
			},
			[]string{"outcome"},
		),
		LivenessProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_liveness_probes_total",
				Help: "Session liveness probe results",
			},
			[]string{"result"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildboard_active_sessions",
				Help: "Whether an authenticated session is currently held (0 or 1 per process)",
			},
		),
		RateLimitChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_ratelimit_checks_total",
				Help: "Rate limit checks by action",
			},
			[]string{"action"},
		),
		RateLimitDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_ratelimit_denials_total",
				Help: "Rate limit denials by action",
			},
			[]string{"action"},
		),
		RateLimitStoreFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "guildboard_ratelimit_store_failures_total",
				Help: "Rate limit store errors that caused a fail-open allow",
			},
		),
		TenantResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_tenant_resolutions_total",
				Help: "Tenant resolutions by outcome",
			},
			[]string{"outcome"},
		),
		TenantCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "guildboard_tenant_cache_hits_total",
				Help: "Tenant resolutions served from cache without a store fetch",
			},
		),
		GuardDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildboard_guard_decisions_total",
				Help: "Access guard decisions by result",
			},
			[]string{"decision"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.RegistrationsTotal,
		m.SessionRefreshesTotal,
		m.LivenessProbesTotal,
		m.ActiveSessions,
		m.RateLimitChecksTotal,
		m.RateLimitDenialsTotal,
		m.RateLimitStoreFailures,
		m.TenantResolutionsTotal,
		m.TenantCacheHitsTotal,
		m.GuardDecisionsTotal,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
