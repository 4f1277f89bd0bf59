package cli

import (
	"github.com/google/uuid"
)

// TraceIDGenerator mints the id that ties one CLI invocation's output to its
// log lines.
type TraceIDGenerator interface {
	Generate() string
}

// UUIDv7TraceIDs generates time-sortable UUIDv7 trace ids.
//
// Thread-safety: UUIDv7TraceIDs is stateless and safe for concurrent use.
type UUIDv7TraceIDs struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7TraceIDs) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
