package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certify/internal/access"
	"certify/internal/admin/models"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

// Service defines the interface for admin authentication.
type Service interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, op access.Operation, credential string) (access.Principal, error)
}

// Handler serves the admin login endpoint.
type Handler struct {
	service Service
	gate    Authorizer
	logger  *slog.Logger
}

func New(service Service, gate Authorizer, logger *slog.Logger) *Handler {
	return &Handler{service: service, gate: gate, logger: logger}
}

// Register mounts admin auth endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/login", h.HandleLogin)
}

// HandleLogin handles POST /admin/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if _, err := h.gate.Authorize(ctx, access.OpLogin, ""); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Login(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "admin login rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, res)
}
