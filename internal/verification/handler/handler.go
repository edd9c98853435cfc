package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shikkha/internal/verification"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/httputil"
	"shikkha/pkg/requestcontext"
)

// Resolver defines the interface for certificate verification.
type Resolver interface {
	Verify(ctx context.Context, cid id.CertificateID) verification.Outcome
}

// Handler serves the public verification endpoint.
type Handler struct {
	resolver Resolver
	logger   *slog.Logger
}

func New(resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		logger:   logger,
	}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/certificates/{id}/verify", h.HandleVerify)
}

// HandleVerify handles GET /certificates/{id}/verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	cid, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		h.logger.WarnContext(ctx, "malformed certificate id",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusBadRequest, &VerifyResponse{
			Outcome:          verification.StateError.String(),
			Error:            httputil.DomainCodeToHTTPCode(dErrors.CodeInvalidInput),
			ErrorDescription: err.Error(),
		})
		return
	}

	outcome := h.resolver.Verify(ctx, cid)

	dev := requestcontext.DeviceInfo(ctx)
	h.logger.InfoContext(ctx, "certificate verified",
		"request_id", requestID,
		"certificate_id", cid.String(),
		"outcome", outcome.State.String(),
		"browser", dev.Browser,
		"os", dev.OS,
		"mobile", dev.Mobile,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, statusFor(outcome.State), FromOutcome(outcome))
}

func statusFor(s verification.State) int {
	switch s {
	case verification.StateValid, verification.StateRevoked:
		return http.StatusOK
	case verification.StateNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}
