// Package middleware enforces per-IP and per-caller request limits.
//
// Store failures never reject a request. After repeated failures the breaker
// opens and limits are served from an in-process fallback until the primary
// store recovers; responses carry X-RateLimit-Status: degraded meanwhile.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"shikkha/internal/ratelimit/metrics"
	"shikkha/internal/ratelimit/models"
	"shikkha/internal/ratelimit/store/bucket"
	"shikkha/pkg/platform/circuit"
	"shikkha/pkg/platform/httputil"
	"shikkha/pkg/requestcontext"
)

const (
	scopeIP     = "ip"
	scopeCaller = "caller"
)

// Store is a sliding-window counter.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	store    Store
	fallback Store
	limits   map[models.Class]models.Limit
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every limit into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

// New limits each class to limits[class]. Classes without a limit pass through.
func New(store Store, limits map[models.Class]models.Limit, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:    store,
		fallback: bucket.NewInMemory(nil),
		limits:   limits,
		breaker:  circuit.New("ratelimit"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests per client IP.
func (m *Middleware) RateLimit(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, scopeIP, func(r *http.Request) string {
		return models.IPKey(requestcontext.ClientIP(r.Context()), class)
	})
}

// RateLimitCaller limits requests per authenticated caller. It must run
// after the auth middleware; requests without a caller fall back to the IP.
func (m *Middleware) RateLimitCaller(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, scopeCaller, func(r *http.Request) string {
		ctx := r.Context()
		if caller := requestcontext.Caller(ctx); !caller.IsNil() {
			return models.CallerKey(caller.String(), class)
		}
		return models.IPKey(requestcontext.ClientIP(ctx), class)
	})
}

func (m *Middleware) limit(class models.Class, scope string, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, ok := m.limits[class]
			if m.disabled || !ok || limit.RequestsPerWindow <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, degraded := m.allow(ctx, key(r), limit)
			if result == nil {
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result, degraded)
			if !result.Allowed {
				if m.metrics != nil {
					m.metrics.IncrementRejected(string(class), scope)
				}
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"class", class,
					"scope", scope,
				)
				writeExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow consults the primary store unless the breaker is open. A nil result
// means neither store could answer and the request is let through.
func (m *Middleware) allow(ctx context.Context, key string, limit models.Limit) (*models.Result, bool) {
	result, err := m.store.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err == nil {
		usePrimary, change := m.breaker.RecordSuccess()
		if change.Closed {
			m.logger.InfoContext(ctx, "rate limit store recovered")
			m.setDegraded(false)
		}
		if usePrimary {
			return result, false
		}
	} else {
		if m.metrics != nil {
			m.metrics.IncrementStoreErrors()
		}
		useFallback, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limit store failing, using in-process fallback", "error", err)
			m.setDegraded(true)
		}
		if !useFallback {
			m.logger.ErrorContext(ctx, "rate limit check failed", "error", err)
			return nil, false
		}
	}

	result, err = m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err != nil {
		return nil, true
	}
	return result, true
}

func (m *Middleware) setDegraded(degraded bool) {
	if m.metrics != nil {
		m.metrics.SetDegraded(degraded)
	}
}

func addHeaders(w http.ResponseWriter, result *models.Result, degraded bool) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}

func writeExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
