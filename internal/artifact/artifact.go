// Package artifact derives the outward-facing pieces of a certificate: its
// verification URL, the payload a document renderer lays out, and QR images.
// Everything here is a pure function of the stored record and configuration.
package artifact

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"certify/internal/certificate/models"
)

const (
	DocumentTitle = "CERTIFICATE OF COMPLETION"

	// DefaultQRSize is the edge length in pixels of generated QR images.
	DefaultQRSize = 256
	MinQRSize     = 64
	MaxQRSize     = 1024

	displayDateLayout = "January 2, 2006"
	isoDateLayout     = "2006-01-02"
)

// DocumentPayload is the content of a printable certificate. Layout belongs to
// the renderer.
type DocumentPayload struct {
	Institution        string
	Title              string
	StudentName        string
	StudentNameDisplay string
	CourseTitle        string
	IssueDate          string
	IssueDateISO       string
	CertificateNumber  string
	VerificationURL    string
	Filename           string
}

type Service struct {
	baseURL     string
	institution string
}

func New(baseURL, institution string) *Service {
	return &Service{
		baseURL:     strings.TrimRight(baseURL, "/"),
		institution: institution,
	}
}

// VerificationURL is the public address a QR code on the certificate points to.
func (s *Service) VerificationURL(number models.CertificateNumber) string {
	return s.baseURL + "/verify/" + string(number)
}

func (s *Service) RenderableDocument(record *models.CertificateRecord) DocumentPayload {
	issued := record.IssuedAt.UTC()
	return DocumentPayload{
		Institution:        s.institution,
		Title:              DocumentTitle,
		StudentName:        record.StudentName,
		StudentNameDisplay: strings.ToUpper(record.StudentName),
		CourseTitle:        record.CourseTitle,
		IssueDate:          issued.Format(displayDateLayout),
		IssueDateISO:       issued.Format(isoDateLayout),
		CertificateNumber:  string(record.CertificateNumber),
		VerificationURL:    s.VerificationURL(record.CertificateNumber),
		Filename:           Filename(record.CertificateNumber),
	}
}

func Filename(number models.CertificateNumber) string {
	return fmt.Sprintf("certificate_%s.pdf", number)
}

// QRCode encodes content as a PNG of size x size pixels with medium error
// correction. Sizes outside [MinQRSize, MaxQRSize] are clamped.
func QRCode(content string, size int) ([]byte, error) {
	size = ClampQRSize(size)
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}

func ClampQRSize(size int) int {
	switch {
	case size <= 0:
		return DefaultQRSize
	case size < MinQRSize:
		return MinQRSize
	case size > MaxQRSize:
		return MaxQRSize
	default:
		return size
	}
}
