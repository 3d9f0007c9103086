package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"certify/internal/access"
	"certify/internal/artifact"
	"certify/internal/certificate/models"
	"certify/internal/course"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

// Service is the certificate service as seen by HTTP.
type Service interface {
	Issue(ctx context.Context, actor access.Principal, req models.IssueRequest) (*models.CertificateRecord, error)
	VerifyByNumber(ctx context.Context, raw string) (*models.PublicView, error)
	VerificationQR(ctx context.Context, raw string, size int) ([]byte, error)
	GetForAdmin(ctx context.Context, actor access.Principal, rawID string) (*models.CertificateRecord, error)
	List(ctx context.Context, actor access.Principal) ([]*models.CertificateRecord, error)
	Count(ctx context.Context, actor access.Principal) (int, error)
	ListCourses(ctx context.Context, actor access.Principal) ([]course.Course, error)
	Document(ctx context.Context, actor access.Principal, rawID string) (*models.CertificateRecord, artifact.DocumentPayload, error)
	VerificationURL(n models.CertificateNumber) string
}

type Authorizer interface {
	Authorize(ctx context.Context, op access.Operation, credential string) (access.Principal, error)
}

type Handler struct {
	service  Service
	gate     Authorizer
	renderer artifact.Renderer
	logger   *slog.Logger
	public   []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithPublicMiddleware wraps only the unauthenticated /verify routes.
func WithPublicMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.public = append(h.public, mw...)
	}
}

func New(service Service, gate Authorizer, renderer artifact.Renderer, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, gate: gate, renderer: renderer, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/certificates", h.HandleIssue)
	r.Get("/admin/certificates", h.HandleList)
	r.Get("/admin/certificates/{internalId}", h.HandleGet)
	r.Get("/admin/certificates/{internalId}/download", h.HandleDownload)
	r.Get("/admin/courses", h.HandleListCourses)
	r.Get("/admin/stats", h.HandleStats)

	r.Group(func(r chi.Router) {
		r.Use(h.public...)
		r.Get("/verify/{certificateNumber}", h.HandleVerify)
		r.Get("/verify/{certificateNumber}/qr", h.HandleQRCode)
	})
}

type certificateResponse struct {
	ID                string    `json:"id"`
	CertificateNumber string    `json:"certificate_number"`
	StudentName       string    `json:"student_name"`
	StudentID         string    `json:"student_id"`
	CourseID          string    `json:"course_id"`
	CourseTitle       string    `json:"course_title"`
	IssuedAt          time.Time `json:"issued_at"`
	VerificationURL   string    `json:"verification_url"`
}

type listResponse struct {
	Certificates []certificateResponse `json:"certificates"`
	Count        int                   `json:"count"`
}

type coursesResponse struct {
	Courses []course.Course `json:"courses"`
}

type statsResponse struct {
	Certificates int `json:"certificates"`
}

func (h *Handler) toResponse(r *models.CertificateRecord) certificateResponse {
	return certificateResponse{
		ID:                r.ID.String(),
		CertificateNumber: string(r.CertificateNumber),
		StudentName:       r.StudentName,
		StudentID:         r.StudentID,
		CourseID:          r.CourseID,
		CourseTitle:       r.CourseTitle,
		IssuedAt:          r.IssuedAt,
		VerificationURL:   h.service.VerificationURL(r.CertificateNumber),
	}
}

// authorize runs the gate and writes the rejection itself.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, op access.Operation) (access.Principal, bool) {
	principal, err := h.gate.Authorize(r.Context(), op, access.CredentialFromRequest(r))
	if err != nil {
		httputil.WriteError(w, err)
		return access.Principal{}, false
	}
	return principal, true
}

// HandleIssue handles POST /admin/certificates.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal, ok := h.authorize(w, r, access.OpIssue)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Issue(ctx, principal, *req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue certificate",
			"request_id", requestID,
			"course_id", req.CourseID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Location", "/admin/certificates/"+record.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, h.toResponse(record))
}

// HandleList handles GET /admin/certificates.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, access.OpList)
	if !ok {
		return
	}

	records, err := h.service.List(r.Context(), principal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := listResponse{Certificates: make([]certificateResponse, 0, len(records)), Count: len(records)}
	for _, record := range records {
		resp.Certificates = append(resp.Certificates, h.toResponse(record))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /admin/certificates/{internalId}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, access.OpRead)
	if !ok {
		return
	}

	record, err := h.service.GetForAdmin(r.Context(), principal, chi.URLParam(r, "internalId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.toResponse(record))
}

// HandleDownload handles GET /admin/certificates/{internalId}/download.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := h.authorize(w, r, access.OpDownload)
	if !ok {
		return
	}

	_, doc, err := h.service.Document(ctx, principal, chi.URLParam(r, "internalId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	pdf, err := h.renderer.Render(ctx, doc)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render certificate",
			"request_id", requestcontext.RequestID(ctx),
			"certificate_number", doc.CertificateNumber,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "certificate rendering is unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// HandleListCourses handles GET /admin/courses.
func (h *Handler) HandleListCourses(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, access.OpListCourses)
	if !ok {
		return
	}

	courses, err := h.service.ListCourses(r.Context(), principal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, coursesResponse{Courses: courses})
}

// HandleStats handles GET /admin/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, access.OpStats)
	if !ok {
		return
	}

	n, err := h.service.Count(r.Context(), principal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statsResponse{Certificates: n})
}

// HandleVerify handles GET /verify/{certificateNumber}.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, access.OpVerify); !ok {
		return
	}

	view, err := h.service.VerifyByNumber(r.Context(), chi.URLParam(r, "certificateNumber"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleQRCode handles GET /verify/{certificateNumber}/qr.
func (h *Handler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, access.OpViewQR); !ok {
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := h.service.VerificationQR(r.Context(), chi.URLParam(r, "certificateNumber"), size)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
