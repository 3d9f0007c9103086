// Package domain holds typed identifiers shared across modules.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "certify/pkg/domain-errors"
)

// CertificateID is the internal identifier of an issued certificate. It is
// never exposed on the public verification surface.
type CertificateID uuid.UUID

// NewCertificateID returns a random (v4) id.
func NewCertificateID() CertificateID {
	return CertificateID(uuid.New())
}

// ParseCertificateID parses a non-nil UUID string.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s, "certificate id")
	return CertificateID(u), err
}

func (id CertificateID) String() string { return uuid.UUID(id).String() }

func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CertificateID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *CertificateID) UnmarshalText(b []byte) error {
	parsed, err := ParseCertificateID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// AdminID identifies an administrator account.
type AdminID uuid.UUID

func NewAdminID() AdminID { return AdminID(uuid.New()) }

func (id AdminID) String() string { return uuid.UUID(id).String() }

func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}
