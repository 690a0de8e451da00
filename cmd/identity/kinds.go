package identity

import (
	"errors"

	"idvault/cmd/security/sealer"
)

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrDuplicate    = errors.New("duplicate_field")
	ErrImmutable    = errors.New("immutable_field")
	ErrInternal     = errors.New("internal")

	// Codec kinds are owned by the sealer and re-exported for callers of this package.
	ErrEncryptionConfig = sealer.ErrKeyConfig
	ErrDecryption       = sealer.ErrDecrypt
)
