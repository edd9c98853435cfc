// Package httptransport assembles the HTTP surface: shared middleware, the
// versioned API, health probes and the metrics endpoint.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shikkha/internal/platform/health"
	"shikkha/internal/platform/metrics"
	ratelimit "shikkha/internal/ratelimit/middleware"
	"shikkha/internal/ratelimit/models"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/middleware/admin"
	"shikkha/pkg/platform/middleware/auth"
	"shikkha/pkg/platform/middleware/device"
	"shikkha/pkg/platform/middleware/metadata"
	"shikkha/pkg/platform/middleware/request"
	"shikkha/pkg/platform/middleware/requesttime"
	"shikkha/pkg/platform/middleware/version"
)

// RouteFunc mounts a handler's routes on r.
type RouteFunc func(r chi.Router)

// Config collects everything the router needs.
type Config struct {
	Logger         *slog.Logger
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	OperatorToken  string

	Validator   auth.JWTValidator
	Revocations auth.TokenRevocationChecker

	RequestMetrics *request.Metrics
	Health         *health.Handler
	// RateLimiter is optional; public routes are limited per IP and admin
	// routes per caller.
	RateLimiter *ratelimit.Middleware

	// Public routes are served without credentials.
	Public []RouteFunc
	// Admin routes require a bearer token.
	Admin []RouteFunc
	// Operator routes require the operator token.
	Operator []RouteFunc
}

// NewRouter wires middleware and routes. API routes live under /v1.
func NewRouter(cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(request.LatencyMiddleware(cfg.RequestMetrics))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(version.ExtractVersion(id.APIVersionV1))
		v1.Use(request.Timeout(cfg.RequestTimeout))
		if cfg.MaxBodyBytes > 0 {
			v1.Use(request.BodyLimit(cfg.MaxBodyBytes))
		}
		v1.Use(request.ContentTypeJSON)

		v1.Group(func(public chi.Router) {
			if cfg.RateLimiter != nil {
				public.Use(cfg.RateLimiter.RateLimit(models.ClassPublic))
			}
			for _, mount := range cfg.Public {
				mount(public)
			}
		})

		v1.Group(func(authed chi.Router) {
			authed.Use(auth.RequireAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
			authed.Use(version.ValidateTokenVersion(cfg.Logger))
			if cfg.RateLimiter != nil {
				authed.Use(cfg.RateLimiter.RateLimitCaller(models.ClassAdmin))
			}
			for _, mount := range cfg.Admin {
				mount(authed)
			}
		})

		v1.Group(func(ops chi.Router) {
			ops.Use(admin.RequireOperatorToken(cfg.OperatorToken, cfg.Logger))
			for _, mount := range cfg.Operator {
				mount(ops)
			}
		})
	})

	return r
}

// MaxBodyBytes sizes the request body limit for base64-encoded documents of
// at most maxDocumentBytes plus the certificate fields.
func MaxBodyBytes(maxDocumentBytes int64) int64 {
	return maxDocumentBytes*4/3 + 64<<10
}
