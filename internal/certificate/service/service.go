// Package service issues certificates and answers lookups against them.
//
// Issuance allocates a certificate number by drawing a random candidate and
// letting the store's atomic insert decide uniqueness; a duplicate is retried
// with a fresh draw up to number.MaxAttempts times. Verification is public and
// deliberately uninformative: a malformed number and an unknown number produce
// the same error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certify/internal/access"
	"certify/internal/artifact"
	"certify/internal/certificate/metrics"
	"certify/internal/certificate/models"
	"certify/internal/certificate/number"
	"certify/internal/course"
	id "certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	audit "certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

type Store interface {
	Insert(ctx context.Context, record *models.CertificateRecord) error
	FindByInternalID(ctx context.Context, internalID models.InternalID) (*models.CertificateRecord, error)
	FindByNumber(ctx context.Context, number models.CertificateNumber) (*models.CertificateRecord, error)
	ListAll(ctx context.Context) ([]*models.CertificateRecord, error)
	Count(ctx context.Context) (int, error)
}

type Catalog interface {
	FindByID(ctx context.Context, id string) (*course.Course, error)
	List(ctx context.Context) ([]course.Course, error)
}

type NumberGenerator interface {
	Generate() (models.CertificateNumber, error)
	Valid(raw string) bool
}

type Artifacts interface {
	VerificationURL(number models.CertificateNumber) string
	RenderableDocument(record *models.CertificateRecord) artifact.DocumentPayload
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

var (
	errCertificateNotFound = dErrors.New(dErrors.CodeNotFound, "certificate not found")
	errAdminRequired       = dErrors.New(dErrors.CodeUnauthorized, "admin capability required")
)

type Service struct {
	store          Store
	catalog        Catalog
	numbers        NumberGenerator
	artifacts      Artifacts
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, catalog Catalog, numbers NumberGenerator, artifacts Artifacts, opts ...Option) *Service {
	s := &Service{
		store:     store,
		catalog:   catalog,
		numbers:   numbers,
		artifacts: artifacts,
		logger:    slog.Default(),
		tracer:    otel.Tracer("certify/certificate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue validates req, snapshots the course title and stores a new record
// under a freshly allocated certificate number.
func (s *Service) Issue(ctx context.Context, actor access.Principal, req models.IssueRequest) (*models.CertificateRecord, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "certificate.issue")
	defer span.End()

	record, err := s.issue(ctx, actor, &req)
	if err != nil {
		code := dErrors.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		if s.metrics != nil {
			s.metrics.IncrementIssueFailure(string(code))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("certificate.number", string(record.CertificateNumber)),
		attribute.String("certificate.course_id", record.CourseID),
	)
	if s.metrics != nil {
		s.metrics.IncrementIssued()
		s.metrics.ObserveIssue(start)
	}
	s.logAudit(ctx, audit.EventCertificateIssued, record, actor)
	return record, nil
}

func (s *Service) issue(ctx context.Context, actor access.Principal, req *models.IssueRequest) (*models.CertificateRecord, error) {
	if !actor.IsAdmin() {
		return nil, errAdminRequired
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.catalog.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidCourse, fmt.Sprintf("course %q does not exist", req.CourseID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve course")
	}

	issuedAt := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)

	for attempt := 1; attempt <= number.MaxAttempts; attempt++ {
		n, err := s.numbers.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate certificate number")
		}

		record := &models.CertificateRecord{
			ID:                id.NewCertificateID(),
			CertificateNumber: n,
			StudentName:       req.StudentName,
			StudentID:         req.StudentID,
			CourseID:          c.ID,
			CourseTitle:       c.Title,
			IssuedAt:          issuedAt,
		}
		err = s.store.Insert(ctx, record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate")
		}

		if s.metrics != nil {
			s.metrics.IncrementCollision()
		}
		s.logger.WarnContext(ctx, "certificate number collision, redrawing",
			"attempt", attempt,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	s.logger.ErrorContext(ctx, "certificate number space exhausted",
		"attempts", number.MaxAttempts,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil, dErrors.New(dErrors.CodeExhaustedKeyspace, "could not allocate a unique certificate number")
}

// VerifyByNumber is the public lookup. Only the allow-listed public fields
// leave this method.
func (s *Service) VerifyByNumber(ctx context.Context, raw string) (*models.PublicView, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "certificate.verify")
	defer span.End()

	record, err := s.lookupByNumber(ctx, raw)
	result := verificationResult(err)
	if s.metrics != nil {
		s.metrics.IncrementVerification(result)
		s.metrics.ObserveVerify(start)
	}
	span.SetAttributes(attribute.String("verification.result", result))
	if err != nil {
		if result == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
		}
		return nil, err
	}

	s.publish(ctx, audit.EventCertificateVerified, record, access.Anonymous)
	return models.ToPublicView(record), nil
}

// VerificationQR returns a PNG QR code for a certificate that exists. Unknown
// numbers get the same not-found answer as VerifyByNumber.
func (s *Service) VerificationQR(ctx context.Context, raw string, size int) ([]byte, error) {
	record, err := s.lookupByNumber(ctx, raw)
	if err != nil {
		return nil, err
	}
	png, err := artifact.QRCode(s.artifacts.VerificationURL(record.CertificateNumber), size)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode qr code")
	}
	return png, nil
}

func (s *Service) lookupByNumber(ctx context.Context, raw string) (*models.CertificateRecord, error) {
	if !s.numbers.Valid(raw) {
		return nil, errCertificateNotFound
	}
	record, err := s.store.FindByNumber(ctx, models.CertificateNumber(raw))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errCertificateNotFound
		}
		s.logger.ErrorContext(ctx, "certificate lookup failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up certificate")
	}
	return record, nil
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return "found"
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// GetForAdmin returns the full record by internal id.
func (s *Service) GetForAdmin(ctx context.Context, actor access.Principal, rawID string) (*models.CertificateRecord, error) {
	if !actor.IsAdmin() {
		return nil, errAdminRequired
	}
	internalID, err := id.ParseCertificateID(rawID)
	if err != nil {
		return nil, errCertificateNotFound
	}
	record, err := s.store.FindByInternalID(ctx, internalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errCertificateNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return record, nil
}

// List returns every certificate, newest first.
func (s *Service) List(ctx context.Context, actor access.Principal) ([]*models.CertificateRecord, error) {
	if !actor.IsAdmin() {
		return nil, errAdminRequired
	}
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return records, nil
}

func (s *Service) Count(ctx context.Context, actor access.Principal) (int, error) {
	if !actor.IsAdmin() {
		return 0, errAdminRequired
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count certificates")
	}
	return n, nil
}

func (s *Service) ListCourses(ctx context.Context, actor access.Principal) ([]course.Course, error) {
	if !actor.IsAdmin() {
		return nil, errAdminRequired
	}
	courses, err := s.catalog.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list courses")
	}
	return courses, nil
}

// Document loads a record and derives its printable payload.
func (s *Service) Document(ctx context.Context, actor access.Principal, rawID string) (*models.CertificateRecord, artifact.DocumentPayload, error) {
	record, err := s.GetForAdmin(ctx, actor, rawID)
	if err != nil {
		return nil, artifact.DocumentPayload{}, err
	}
	if s.metrics != nil {
		s.metrics.IncrementDownload()
	}
	s.logAudit(ctx, audit.EventCertificateDownloaded, record, actor)
	return record, s.artifacts.RenderableDocument(record), nil
}

func (s *Service) VerificationURL(n models.CertificateNumber) string {
	return s.artifacts.VerificationURL(n)
}

// RefreshStoredGauge recomputes the stored-certificates gauge.
func (s *Service) RefreshStoredGauge(ctx context.Context) error {
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetStored(n)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, record *models.CertificateRecord, actor access.Principal) {
	s.logger.InfoContext(ctx, string(action),
		"event", string(action),
		"log_type", "audit",
		"certificate_number", string(record.CertificateNumber),
		"admin_id", actor.AdminID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publish(ctx, action, record, actor)
}

// publish never fails the caller; a dropped event is logged and counted by
// the publisher.
func (s *Service) publish(ctx context.Context, action audit.AuditEvent, record *models.CertificateRecord, actor access.Principal) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.FromContext(ctx, action, string(record.CertificateNumber))
	event.ActorID = actor.AdminID
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"error", err,
		)
	}
}
