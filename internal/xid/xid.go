package xid

import "github.com/google/uuid"

// New returns an opaque identifier. An empty prefix yields a bare UUID.
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
