package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// so services can translate them into domain errors:
//   - ErrNotFound: no record under the requested key
//   - ErrConflict: a unique key is already taken (e.g. certificate number)
//   - ErrUnavailable: backing service temporarily unreachable
//
// Validation failures are not facts about storage; use pkg/domain-errors for those.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
