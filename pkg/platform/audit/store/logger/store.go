// Package logger writes audit events as structured log lines. It is the
// default sink when no broker is configured.
package logger

import (
	"context"
	"log/slog"

	audit "certify/pkg/platform/audit"
)

type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	attrs := []any{
		"event", event.Action,
		"log_type", "audit",
		"category", string(event.Category),
		"subject", event.Subject,
		"timestamp", event.Timestamp,
	}
	if event.ActorID != "" {
		attrs = append(attrs, "actor_id", event.ActorID)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if event.ClientIP != "" {
		attrs = append(attrs, "client_ip", event.ClientIP)
	}
	if event.UserAgent != "" {
		attrs = append(attrs, "user_agent", event.UserAgent)
	}
	if event.Detail != "" {
		attrs = append(attrs, "detail", event.Detail)
	}
	s.logger.InfoContext(ctx, event.Action, attrs...)
	return nil
}
