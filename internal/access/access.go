// Package access decides, per operation, whether a caller may proceed.
//
// Every HTTP handler calls Gate.Authorize before it touches a service. The
// returned Principal is passed explicitly into service methods; nothing is
// stashed in the request context.
package access

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "certify/pkg/domain-errors"
	"certify/pkg/requestcontext"
)

// Capability is the level of trust an operation requires.
type Capability string

const (
	CapabilityPublic Capability = "public"
	CapabilityAdmin  Capability = "admin"
)

// Operation names an externally reachable action.
type Operation string

const (
	OpVerify Operation = "verify"
	OpViewQR Operation = "view_qr"
	OpLogin  Operation = "login"

	OpIssue       Operation = "issue"
	OpList        Operation = "list"
	OpRead        Operation = "read"
	OpDownload    Operation = "download"
	OpListCourses Operation = "list_courses"
	OpStats       Operation = "stats"
)

var requiredCapability = map[Operation]Capability{
	OpVerify: CapabilityPublic,
	OpViewQR: CapabilityPublic,
	OpLogin:  CapabilityPublic,

	OpIssue:       CapabilityAdmin,
	OpList:        CapabilityAdmin,
	OpRead:        CapabilityAdmin,
	OpDownload:    CapabilityAdmin,
	OpListCourses: CapabilityAdmin,
	OpStats:       CapabilityAdmin,
}

// CapabilityFor returns the capability op requires. Unknown operations
// require admin.
func CapabilityFor(op Operation) Capability {
	if c, ok := requiredCapability[op]; ok {
		return c
	}
	return CapabilityAdmin
}

// Principal is the authenticated (or anonymous) caller of one operation.
type Principal struct {
	AdminID      string
	Username     string
	Capabilities []Capability
}

// Anonymous is the principal of every public call.
var Anonymous = Principal{Capabilities: []Capability{CapabilityPublic}}

func (p Principal) Has(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal carries the admin capability.
func (p Principal) IsAdmin() bool {
	return p.Has(CapabilityAdmin)
}

// Authenticator turns an opaque credential into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (Principal, error)
}

type Gate struct {
	authn  Authenticator
	logger *slog.Logger
}

func NewGate(authn Authenticator, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{authn: authn, logger: logger}
}

// Authorize admits or rejects a request for op. Public operations never
// consult the authenticator. Admin operations fail with CodeUnauthorized when
// the credential is missing, invalid or lacks the admin capability.
func (g *Gate) Authorize(ctx context.Context, op Operation, credential string) (Principal, error) {
	if CapabilityFor(op) == CapabilityPublic {
		return Anonymous, nil
	}

	if credential == "" {
		g.deny(ctx, op, "missing_credential")
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	principal, err := g.authn.Authenticate(ctx, credential)
	if err != nil {
		g.deny(ctx, op, "invalid_credential")
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired credential")
	}
	if !principal.IsAdmin() {
		g.deny(ctx, op, "missing_capability")
		return Principal{}, dErrors.New(dErrors.CodeUnauthorized, "admin capability required")
	}
	return principal, nil
}

func (g *Gate) deny(ctx context.Context, op Operation, reason string) {
	g.logger.WarnContext(ctx, "access denied",
		"operation", string(op),
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// CredentialFromRequest returns the bearer token from the Authorization
// header, or "" when absent or malformed.
func CredentialFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
