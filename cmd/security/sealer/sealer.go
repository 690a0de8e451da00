package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Envelope tags. The tag is also bound as AEAD additional data.
const (
	tagAES256GCM         byte = 0x01
	tagXChaCha20Poly1305 byte = 0x02
)

var envelopeEncoding = base64.RawURLEncoding

// Sealer encrypts and fingerprints secret strings. It is safe for concurrent use.
//
// Envelope layout (base64url, no padding): tag(1) || nonce || ciphertext+tag.
type Sealer struct {
	alg    Algorithm
	tag    byte
	aeads  map[byte]cipher.AEAD
	keyErr error
	fpKey  []byte
}

// New builds a Sealer. Key problems are kept and reported by Seal/Open as ErrKeyConfig.
func New(cfg Config) *Sealer {
	s := &Sealer{}
	if cfg.FingerprintKey != "" {
		s.fpKey = []byte(cfg.FingerprintKey)
	}

	alg, err := cfg.algorithm()
	if err != nil {
		s.keyErr = err
		return s
	}
	s.alg = alg

	key, err := ParseKey(cfg.Key)
	if err != nil {
		s.keyErr = err
		return s
	}

	gcm, err := newAESGCM(key)
	if err != nil {
		s.keyErr = KeyError{Reason: err.Error()}
		return s
	}
	xc, err := chacha20poly1305.NewX(key)
	if err != nil {
		s.keyErr = KeyError{Reason: err.Error()}
		return s
	}

	// Both constructions are kept so envelopes sealed before a cipher switch still open.
	s.aeads = map[byte]cipher.AEAD{
		tagAES256GCM:         gcm,
		tagXChaCha20Poly1305: xc,
	}
	switch alg {
	case XChaCha20Poly1305:
		s.tag = tagXChaCha20Poly1305
	default:
		s.tag = tagAES256GCM
	}
	return s
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Algorithm reports the AEAD used for new envelopes (empty when misconfigured).
func (s *Sealer) Algorithm() Algorithm {
	if s == nil || s.keyErr != nil {
		return ""
	}
	return s.alg
}

// Err reports the configuration error Seal/Open would return, if any.
func (s *Sealer) Err() error {
	if s == nil {
		return KeyError{Reason: "nil sealer"}
	}
	return s.keyErr
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if err := s.Err(); err != nil {
		return "", err
	}

	aead := s.aeads[s.tag]
	ns := aead.NonceSize()

	buf := make([]byte, 1+ns, 1+ns+len(plaintext)+aead.Overhead())
	buf[0] = s.tag
	if _, err := rand.Read(buf[1:]); err != nil {
		return "", fmt.Errorf("sealer: nonce: %w", err)
	}
	nonce := buf[1 : 1+ns]

	out := aead.Seal(buf, nonce, []byte(plaintext), buf[:1])
	return envelopeEncoding.EncodeToString(out), nil
}

// Open decrypts an envelope produced by Seal.
func (s *Sealer) Open(envelope string) (string, error) {
	if err := s.Err(); err != nil {
		return "", err
	}

	raw, err := envelopeEncoding.DecodeString(envelope)
	if err != nil || len(raw) < 1 {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}

	aead, ok := s.aeads[raw[0]]
	if !ok {
		return "", fmt.Errorf("%w: unknown envelope tag", ErrDecrypt)
	}

	ns := aead.NonceSize()
	if len(raw) < 1+ns+aead.Overhead() {
		return "", fmt.Errorf("%w: truncated envelope", ErrDecrypt)
	}

	pt, err := aead.Open(nil, raw[1:1+ns], raw[1+ns:], raw[:1])
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecrypt)
	}
	return string(pt), nil
}

// Fingerprint returns a 64-char hex digest of plaintext.
// HMAC-SHA256 under the fingerprint key when one is configured, otherwise SHA-256.
// It does not depend on the field key, so rotating that key keeps fingerprints stable.
func (s *Sealer) Fingerprint(plaintext string) string {
	if s != nil && len(s.fpKey) > 0 {
		m := hmac.New(sha256.New, s.fpKey)
		_, _ = m.Write([]byte(plaintext))
		return hex.EncodeToString(m.Sum(nil))
	}
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// FingerprintKeyed reports whether fingerprints are HMAC-based.
func (s *Sealer) FingerprintKeyed() bool {
	return s != nil && len(s.fpKey) > 0
}
