// Package handler serves operator endpoints guarded by the operator token:
// on-demand index reconciliation and caller token revocation.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shikkha/internal/index/reconcile"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/httputil"
	"shikkha/pkg/requestcontext"
)

type Sweeper interface {
	Run(ctx context.Context) (int, error)
}

type Auditor interface {
	Run(ctx context.Context) (reconcile.Report, error)
}

// TokenRevoker adds a token id to the revocation list.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Handler struct {
	sweeper  Sweeper
	auditor  Auditor
	revoker  TokenRevoker
	tokenTTL time.Duration
	logger   *slog.Logger
}

// New builds the handler. tokenTTL bounds how long a revoked id is remembered
// and should match the lifetime of issued tokens.
func New(sweeper Sweeper, auditor Auditor, revoker TokenRevoker, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		sweeper:  sweeper,
		auditor:  auditor,
		revoker:  revoker,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/ops/reconcile", h.HandleReconcile)
	r.Post("/ops/tokens/revoke", h.HandleRevokeToken)
}

type ReconcileResponse struct {
	Applied   int `json:"applied"`
	Scanned   int `json:"scanned"`
	Orphaned  int `json:"orphaned"`
	Restored  int `json:"restored"`
	Revoked   int `json:"revoked"`
	Rewritten int `json:"rewritten"`
}

// HandleReconcile runs one sweep and one audit pass synchronously.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applied, err := h.sweeper.Run(ctx)
	if err != nil {
		h.fail(ctx, w, "sweep failed", err)
		return
	}
	report, err := h.auditor.Run(ctx)
	if err != nil {
		h.fail(ctx, w, "audit failed", err)
		return
	}
	h.logger.InfoContext(ctx, "manual reconciliation completed",
		"request_id", requestcontext.RequestID(ctx),
		"applied", applied,
		"scanned", report.Scanned,
	)
	httputil.WriteJSON(w, http.StatusOK, ReconcileResponse{
		Applied:   applied,
		Scanned:   report.Scanned,
		Orphaned:  report.Orphaned,
		Restored:  report.Restored,
		Revoked:   report.Revoked,
		Rewritten: report.Rewritten,
	})
}

type RevokeTokenRequest struct {
	JTI string `json:"jti"`
}

func (req *RevokeTokenRequest) Normalize() {
	req.JTI = strings.TrimSpace(req.JTI)
}

func (req *RevokeTokenRequest) Validate() error {
	if req.JTI == "" {
		return dErrors.New(dErrors.CodeValidation, "jti is required")
	}
	return nil
}

// HandleRevokeToken revokes a caller token by id.
func (h *Handler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RevokeTokenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.revoker.RevokeToken(ctx, req.JTI, h.tokenTTL); err != nil {
		h.fail(ctx, w, "token revocation failed", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke token"))
		return
	}
	h.logger.InfoContext(ctx, "caller token revoked",
		"request_id", requestID,
		"jti", req.JTI,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
