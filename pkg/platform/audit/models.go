package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with record-keeping significance, such as issuance.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring: login outcomes, lockouts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine, high-volume activity such as public lookups.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    string        `json:"action"`
	// ActorID is the admin who performed the action; empty for public callers.
	ActorID string `json:"actor_id,omitempty"`
	// Subject is the entity acted on, usually a certificate number or a username.
	Subject   string `json:"subject"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type AuditEvent string

const (
	EventCertificateIssued     AuditEvent = "certificate_issued"
	EventCertificateVerified   AuditEvent = "certificate_verified"
	EventCertificateDownloaded AuditEvent = "certificate_downloaded"

	EventAdminLoginSucceeded AuditEvent = "admin_login_succeeded"
	EventAdminLoginFailed    AuditEvent = "admin_login_failed"

	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCertificateIssued: CategoryCompliance,

	EventAdminLoginSucceeded: CategorySecurity,
	EventAdminLoginFailed:    CategorySecurity,
	EventRateLimitExceeded:   CategorySecurity,

	EventCertificateVerified:   CategoryOperations,
	EventCertificateDownloaded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events. Implementations must be safe for
// concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what services depend on. Emit must not block the caller on sink I/O.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
