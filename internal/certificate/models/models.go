package models

import (
	"strings"
	"time"

	id "certify/pkg/domain"
	"certify/pkg/platform/validation"
)

// CertificateNumber is the public identifier printed on a certificate and
// encoded in its QR code. Comparison is exact and case-sensitive.
type CertificateNumber string

func (n CertificateNumber) String() string { return string(n) }

// InternalID is the storage key, used only on admin routes.
type InternalID = id.CertificateID

// CertificateRecord is an issued certificate. Records are created once and
// never updated or deleted. CourseTitle is a copy of the catalog title at
// issuance time, not a reference.
type CertificateRecord struct {
	ID                InternalID        `json:"id"`
	CertificateNumber CertificateNumber `json:"certificate_number"`
	StudentName       string            `json:"student_name"`
	StudentID         string            `json:"student_id"`
	CourseID          string            `json:"course_id"`
	CourseTitle       string            `json:"course_title"`
	IssuedAt          time.Time         `json:"issued_at"`
}

// Clone returns an independent copy.
func (r *CertificateRecord) Clone() *CertificateRecord {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// IssueRequest is the admin input for issuing a certificate.
type IssueRequest struct {
	StudentName string `json:"student_name" validate:"required,max=128"`
	StudentID   string `json:"student_id" validate:"required,max=64"`
	CourseID    string `json:"course_id" validate:"required,max=64"`
}

// Normalize trims surrounding whitespace from every field.
func (r *IssueRequest) Normalize() {
	r.StudentName = strings.TrimSpace(r.StudentName)
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.CourseID = strings.TrimSpace(r.CourseID)
}

// Validate normalizes, then checks that every field is present and bounded.
func (r *IssueRequest) Validate() error {
	r.Normalize()
	return validation.Struct(r)
}

// PublicView is everything an unauthenticated verifier may see.
type PublicView struct {
	CertificateNumber CertificateNumber `json:"certificate_number"`
	StudentName       string            `json:"student_name"`
	Course            string            `json:"course"`
	IssueDate         time.Time         `json:"issue_date"`
	Valid             bool              `json:"valid"`
}

// ToPublicView projects a record onto the public field allow-list.
func ToPublicView(r *CertificateRecord) *PublicView {
	return &PublicView{
		CertificateNumber: r.CertificateNumber,
		StudentName:       r.StudentName,
		Course:            r.CourseTitle,
		IssueDate:         r.IssuedAt,
		Valid:             true,
	}
}
