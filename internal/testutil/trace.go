package testutil

// FixedTraceIDs returns the same trace id on every call so CLI output can be
// compared byte for byte.
//
// Thread-safety: FixedTraceIDs is stateless and safe for concurrent use.
type FixedTraceIDs struct {
	id string
}

// NewFixedTraceIDs creates a generator for id. An empty id yields
// "test-trace-default".
func NewFixedTraceIDs(id string) *FixedTraceIDs {
	if id == "" {
		id = "test-trace-default"
	}
	return &FixedTraceIDs{id: id}
}

// Generate returns the fixed id.
func (g *FixedTraceIDs) Generate() string {
	return g.id
}
