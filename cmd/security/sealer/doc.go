// Package sealer protects government identifiers at the field level.
//
// It offers two primitives, both driven by process configuration:
//   - Seal/Open: authenticated encryption with a 256-bit key and a fresh random
//     nonce per call. The nonce and an algorithm tag travel inside the envelope,
//     so Open needs nothing but the envelope and the key.
//   - Fingerprint: a deterministic digest used only for equality checks
//     (duplicate detection). It can never be reversed.
//
// Environment:
//   - IDVAULT_FIELD_KEY: 32-byte key, hex (64 chars) or base64 encoded.
//   - IDVAULT_FIELD_CIPHER: "aes-256-gcm" (default) or "xchacha20-poly1305".
//   - IDVAULT_FINGERPRINT_KEY: optional HMAC secret. When unset, fingerprints
//     fall back to plain SHA-256.
//
// A missing or malformed key does not fail construction; it surfaces as
// ErrKeyConfig on the first Seal/Open. Use Config.Validate to fail fast.
package sealer
