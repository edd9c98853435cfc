package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	indexModels "shikkha/internal/index/models"
	"shikkha/internal/issuance/models"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/httputil"
	"shikkha/pkg/requestcontext"
)

// IdempotencyKeyHeader carries an optional client key for admissions.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// Service defines the interface for admin submissions.
type Service interface {
	Issue(ctx context.Context, caller id.Address, req models.IssueRequest) (*models.IssueResult, error)
	Revoke(ctx context.Context, caller id.Address, cid id.CertificateID) (*models.RevokeResult, error)
	List(ctx context.Context, issuer id.Address, page indexModels.Page) ([]*indexModels.Entry, int, error)
	CurrentAdmin() id.Address
	IsAdmin(caller id.Address) bool
}

// Handler serves the authenticated admin endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts admin endpoints on r. Callers must already be authenticated.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/certificates", h.HandleIssue)
	r.Post("/admin/certificates/{id}/revoke", h.HandleRevoke)
	r.Get("/admin/certificates", h.HandleList)
	r.Get("/admin/whoami", h.HandleWhoAmI)
}

// HandleIssue handles POST /admin/certificates requests.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLength {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "idempotency key is too long"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueCertificateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Issue(ctx, caller, models.IssueRequest{
		Fields:         req.Fields(),
		Document:       req.Document,
		IdempotencyKey: key,
	})
	if err != nil {
		h.logFailure(ctx, "certificate issuance failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.logger.InfoContext(ctx, "certificate issued",
		"request_id", requestID,
		"caller", caller.String(),
		"certificate_id", result.CertificateID.String(),
		"replayed", result.Replayed,
	)
	httputil.WriteJSON(w, status, FromIssueResult(result))
}

// HandleRevoke handles POST /admin/certificates/{id}/revoke requests.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	cid, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Revoke(ctx, caller, cid)
	if err != nil {
		h.logFailure(ctx, "certificate revocation failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRevokeResult(result))
}

// HandleList handles GET /admin/certificates?issuer=&limit=&offset= requests.
// The issuer defaults to the caller.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	q := r.URL.Query()
	issuer := caller
	if raw := q.Get("issuer"); raw != "" {
		parsed, err := id.ParseAddress(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		issuer = parsed
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page := indexModels.Page{Limit: limit, Offset: offset}.Normalize()

	entries, total, err := h.service.List(ctx, issuer, page)
	if err != nil {
		h.logFailure(ctx, "certificate listing failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntries(entries, total, page))
}

// HandleWhoAmI handles GET /admin/whoami requests.
func (h *Handler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireCaller(w, r.Context())
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &WhoAmIResponse{
		Caller:  caller.String(),
		Admin:   h.service.CurrentAdmin().String(),
		IsAdmin: h.service.IsAdmin(caller),
	})
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (id.Address, bool) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, caller id.Address, err error) {
	level := slog.LevelWarn
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"caller", caller.String(),
		"error", err,
	)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
