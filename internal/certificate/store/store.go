// Package store persists certificate records. Every implementation enforces
// number uniqueness atomically inside Insert; that rejection is the only
// uniqueness signal issuance relies on.
package store

import (
	"fmt"

	"certify/pkg/platform/sentinel"
)

// ErrDuplicateNumber is returned by Insert when the certificate number is taken.
var ErrDuplicateNumber = fmt.Errorf("%w: certificate number already issued", sentinel.ErrConflict)
