// Package reqid mints request-correlation identifiers for the transport's
// access log, the same typeid-backed approach the engine uses for its own
// workload.ID.
package reqid

import "go.jetify.com/typeid"

// Prefix names the id's type tag.
type Prefix struct{}

// Prefix returns the typeid prefix string.
func (Prefix) Prefix() string { return "req" }

// ID is a typed, prefixed, sortable request identifier.
type ID struct {
	typeid.TypeID[Prefix]
}

// New mints a fresh ID.
func New() (ID, error) {
	return typeid.New[ID]()
}
