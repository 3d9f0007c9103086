package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"certify/internal/admin/models"
	dErrors "certify/pkg/domain-errors"
	audit "certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

type Store interface {
	FindByUsername(ctx context.Context, username string) (*models.Admin, error)
}

type TokenIssuer interface {
	GenerateAdminToken(adminID, username string, expiresIn time.Duration) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// dummyHash keeps unknown-user logins as slow as wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("certify-timing-equalizer"), bcrypt.DefaultCost)

// Service authenticates admins and mints their session tokens.
type Service struct {
	store          Store
	tokens         TokenIssuer
	tokenTTL       time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func New(store Store, tokens TokenIssuer, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens, tokenTTL: tokenTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errBadCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")

// Login checks credentials and returns a signed token. Unknown usernames and
// wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	admin, err := s.store.FindByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin")
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		s.emit(ctx, audit.EventAdminLoginFailed, req.Username, "", "unknown_user")
		return nil, errBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(req.Password)); err != nil {
		s.emit(ctx, audit.EventAdminLoginFailed, req.Username, admin.ID, "wrong_password")
		return nil, errBadCredentials
	}

	token, expiresAt, err := s.tokens.GenerateAdminToken(admin.ID, admin.Username, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.emit(ctx, audit.EventAdminLoginSucceeded, admin.Username, admin.ID, "")
	return &models.LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, username, adminID, reason string) {
	attrs := []any{"event", string(action), "log_type", "audit", "username", username,
		"request_id", requestcontext.RequestID(ctx)}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	s.logger.InfoContext(ctx, string(action), attrs...)

	if s.auditPublisher == nil {
		return
	}
	event := audit.FromContext(ctx, action, username)
	event.ActorID = adminID
	event.Detail = reason
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}
