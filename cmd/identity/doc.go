// Package identity implements the identity-record vault.
//
// A Record carries two government identifiers (national ID, tax ID) that are kept
// only as sealed ciphertext plus a deterministic fingerprint. Service is the single
// reader/writer of records: it enforces uniqueness (email, primary contact, both
// fingerprints, including soft-deleted rows), immutability of the identifiers,
// soft-delete visibility, and pagination. Persistence sits behind Store, with
// in-memory and PostgreSQL implementations.
package identity
