package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	indexModels "shikkha/internal/index/models"
	"shikkha/internal/institution/models"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
	"shikkha/pkg/platform/httputil"
	"shikkha/pkg/requestcontext"
)

// Service defines the interface for institution profiles.
type Service interface {
	Register(ctx context.Context, caller id.Address, req models.RegisterRequest) (*models.Profile, error)
	Get(ctx context.Context, wallet id.Address) (*models.Profile, error)
	List(ctx context.Context, page indexModels.Page) ([]*models.Profile, int, error)
}

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

// RegisterPublic mounts the unauthenticated read endpoints.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/institutions", h.HandleList)
	r.Get("/institutions/{wallet}", h.HandleGet)
}

// RegisterAdmin mounts the endpoints that need an authenticated caller.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/institutions", h.HandleRegister)
}

type ProfileResponse struct {
	Wallet       string    `json:"wallet"`
	Name         string    `json:"name"`
	Website      string    `json:"website"`
	LogoURL      string    `json:"logo_url"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func fromProfile(p *models.Profile) ProfileResponse {
	return ProfileResponse{
		Wallet:       p.Wallet.String(),
		Name:         p.Name,
		Website:      p.Website,
		LogoURL:      p.LogoURL,
		RegisteredAt: p.RegisteredAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

type ListResponse struct {
	Institutions []ProfileResponse `json:"institutions"`
	Total        int               `json:"total"`
}

// HandleRegister handles POST /admin/institutions requests.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Register(ctx, caller, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "institution registration failed",
			"request_id", requestID,
			"caller", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromProfile(p))
}

// HandleGet handles GET /institutions/{wallet} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	wallet, err := id.ParseAddress(chi.URLParam(r, "wallet"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), wallet)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromProfile(p))
}

// HandleList handles GET /institutions?limit=&offset= requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	profiles, total, err := h.service.List(r.Context(), indexModels.Page{Limit: limit, Offset: offset})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := ListResponse{Institutions: make([]ProfileResponse, 0, len(profiles)), Total: total}
	for _, p := range profiles {
		resp.Institutions = append(resp.Institutions, fromProfile(p))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
