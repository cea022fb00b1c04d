package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Registry holds the collectors of the auth service.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RegistrationsTotal *prometheus.CounterVec
	LoginAttemptsTotal *prometheus.CounterVec
	TokenRefreshTotal  *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec
	SideEffectErrors   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		RegistrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"status"}),
		LoginAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"status"}),
		TokenRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh token rotations by outcome",
		}, []string{"status"}),
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_email_verifications_total",
			Help: "Email verification attempts by outcome",
		}, []string{"status"}),
		SideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_side_effect_errors_total",
			Help: "Failed best-effort side effects (events, mail, search index)",
		}, []string{"kind"}),
	}
	r.reg.MustRegister(
		r.HTTPRequestsTotal,
		r.HTTPRequestDuration,
		r.RegistrationsTotal,
		r.LoginAttemptsTotal,
		r.TokenRefreshTotal,
		r.VerificationsTotal,
		r.SideEffectErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Outcome labels a result for the per-operation counters.
func Outcome(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpVerify   = "verify_email"
)

// Observe counts one outcome of an auth operation. A nil registry is a no-op.
func (r *Registry) Observe(op string, err error) {
	if r == nil {
		return
	}
	var vec *prometheus.CounterVec
	switch op {
	case OpRegister:
		vec = r.RegistrationsTotal
	case OpLogin:
		vec = r.LoginAttemptsTotal
	case OpRefresh:
		vec = r.TokenRefreshTotal
	case OpVerify:
		vec = r.VerificationsTotal
	default:
		return
	}
	vec.WithLabelValues(Outcome(err)).Inc()
}

// SideEffectFailed counts a best-effort side effect that did not go through.
func (r *Registry) SideEffectFailed(kind string) {
	if r == nil {
		return
	}
	r.SideEffectErrors.WithLabelValues(kind).Inc()
}

// Middleware records request counts and latency per route template.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			r.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			r.HTTPRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
