package sealer

import "errors"

// Public, stable errors for callers.
var (
	// ErrKeyConfig means the field key is absent, undecodable, or not 256 bits.
	ErrKeyConfig = errors.New("field encryption key misconfigured")

	// ErrDecrypt means an envelope could not be opened: malformed, unknown
	// algorithm tag, tampered, or sealed under a different key.
	ErrDecrypt = errors.New("field decryption failed")
)

// KeyError carries the reason a key was rejected. It never includes key material.
type KeyError struct {
	Reason string
}

func (e KeyError) Error() string {
	if e.Reason == "" {
		return ErrKeyConfig.Error()
	}
	return ErrKeyConfig.Error() + ": " + e.Reason
}

func (e KeyError) Unwrap() error { return ErrKeyConfig }
