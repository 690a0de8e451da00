package sealer

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// FieldKeyEnv is the env var name for the field encryption key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	FieldKeyEnv = "IDVAULT_FIELD_KEY"

	// FieldCipherEnv selects the AEAD used for new envelopes.
	FieldCipherEnv = "IDVAULT_FIELD_CIPHER"

	// FingerprintKeyEnv is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	FingerprintKeyEnv = "IDVAULT_FINGERPRINT_KEY"

	// KeySize is the required field key length in bytes (256 bits).
	KeySize = 32

	// MinFingerprintKeyBytes is the minimum accepted HMAC secret length.
	MinFingerprintKeyBytes = 32
)

// Algorithm names an AEAD construction.
type Algorithm string

const (
	AES256GCM         Algorithm = "aes-256-gcm"
	XChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
)

// Config is the single configuration surface for this package.
// Key and FingerprintKey hold encoded secrets; never log them.
type Config struct {
	Key            string
	Algorithm      Algorithm
	FingerprintKey string
}

// ConfigFromEnv reads Config from the IDVAULT_* environment.
func ConfigFromEnv() Config {
	return Config{
		Key:            strings.TrimSpace(os.Getenv(FieldKeyEnv)),
		Algorithm:      Algorithm(strings.ToLower(strings.TrimSpace(os.Getenv(FieldCipherEnv)))),
		FingerprintKey: strings.TrimSpace(os.Getenv(FingerprintKeyEnv)),
	}
}

// Validate reports the problems Seal/Open (or a weak fingerprint setup) would hit later.
func (c Config) Validate() error {
	if _, err := ParseKey(c.Key); err != nil {
		return err
	}
	if _, err := c.algorithm(); err != nil {
		return err
	}
	if fp := strings.TrimSpace(c.FingerprintKey); fp != "" && len(fp) < MinFingerprintKeyBytes {
		return KeyError{Reason: fmt.Sprintf("fingerprint key too short (min %d bytes)", MinFingerprintKeyBytes)}
	}
	return nil
}

func (c Config) algorithm() (Algorithm, error) {
	switch c.Algorithm {
	case "", AES256GCM:
		return AES256GCM, nil
	case XChaCha20Poly1305:
		return XChaCha20Poly1305, nil
	default:
		return "", KeyError{Reason: fmt.Sprintf("unsupported cipher %q", string(c.Algorithm))}
	}
}

// ParseKey decodes a 256-bit key given as hex or base64 (standard or URL, padded or raw).
func ParseKey(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, KeyError{Reason: "missing"}
	}

	var raw []byte
	if len(s) == hex.EncodedLen(KeySize) {
		if b, err := hex.DecodeString(s); err == nil {
			raw = b
		}
	}
	if raw == nil {
		for _, enc := range []*base64.Encoding{
			base64.StdEncoding,
			base64.RawStdEncoding,
			base64.URLEncoding,
			base64.RawURLEncoding,
		} {
			if b, err := enc.DecodeString(s); err == nil {
				raw = b
				break
			}
		}
	}
	if raw == nil {
		return nil, KeyError{Reason: "not hex or base64"}
	}
	if len(raw) != KeySize {
		return nil, KeyError{Reason: fmt.Sprintf("want %d bytes, got %d", KeySize, len(raw))}
	}
	return raw, nil
}
