package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind is one of the sentinel kinds; Msg is human-readable and never carries secrets
// or raw driver text.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ValidationError reports malformed or empty input, with the offending field when known.
type ValidationError struct {
	Op    string
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	switch {
	case e.Field == "" && e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Op, ErrInvalidInput)
	case e.Field == "":
		return fmt.Sprintf("%s: %v: %s", e.Op, ErrInvalidInput, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v: %s", e.Op, ErrInvalidInput, e.Field)
	default:
		return fmt.Sprintf("%s: %v: %s: %s", e.Op, ErrInvalidInput, e.Field, e.Msg)
	}
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// DuplicateFieldError reports a uniqueness violation on a logical field:
// "email", "primary_contact", "national_id", "tax_id".
// The pre-check and a storage constraint violation produce the same value.
type DuplicateFieldError struct {
	Op    string
	Field string
}

func (e DuplicateFieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrDuplicate)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrDuplicate, e.Field)
}

func (e DuplicateFieldError) Unwrap() error { return ErrDuplicate }

// ImmutableFieldError reports an attempt to change a field fixed at creation.
type ImmutableFieldError struct {
	Op    string
	Field string
}

func (e ImmutableFieldError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrImmutable, e.Field)
}

func (e ImmutableFieldError) Unwrap() error { return ErrImmutable }

// NotFoundError reports a missing or soft-deleted record.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ConstraintViolation is returned by stores when a write hits a unique constraint.
// Field is the logical field; Constraint is the storage-level name when known.
type ConstraintViolation struct {
	Field      string
	Constraint string
}

func (e ConstraintViolation) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("unique constraint violated: %s", e.Field)
	}
	return fmt.Sprintf("unique constraint violated: %s (%s)", e.Field, e.Constraint)
}

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsDuplicate reports whether err represents ErrDuplicate.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// DuplicateField returns the logical field of a DuplicateFieldError.
func DuplicateField(err error) (string, bool) {
	var de DuplicateFieldError
	if !errors.As(err, &de) {
		return "", false
	}
	return de.Field, true
}

// IsImmutable reports whether err represents ErrImmutable.
func IsImmutable(err error) bool { return errors.Is(err, ErrImmutable) }

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsEncryptionConfig reports whether err is a field-key configuration failure.
func IsEncryptionConfig(err error) bool { return errors.Is(err, ErrEncryptionConfig) }

// IsDecryption reports whether err is a ciphertext authentication failure.
func IsDecryption(err error) bool { return errors.Is(err, ErrDecryption) }

// IsInternal reports whether err represents ErrInternal.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }
