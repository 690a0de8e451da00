package identity

import (
	"time"

	"idvault/cmd/identity/ids"
)

// NewULID returns a new record id (26-char ULID).
func NewULID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
