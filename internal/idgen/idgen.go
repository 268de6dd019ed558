// Package idgen generates random identifiers for receipts and requests.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random v4 UUID.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix followed by 24 hex characters, e.g. rcpt_3f9c….
func WithPrefix(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Valid reports whether s is a UUID, so callers can trust an inbound
// X-Request-ID before echoing it.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
