package store

import (
	"sort"

	"certify/internal/certificate/models"
)

// SortNewestFirst orders by issue time descending, then number descending so
// records issued in the same instant still have a total order.
func SortNewestFirst(records []*models.CertificateRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.IssuedAt.Equal(b.IssuedAt) {
			return a.IssuedAt.After(b.IssuedAt)
		}
		return a.CertificateNumber > b.CertificateNumber
	})
}
