package identity

import (
	"context"
	"time"
)

// Record is the managed identity entity.
// IMPORTANT: identifiers are held only as ciphertext + fingerprint; plaintext is never stored.
type Record struct {
	ID string

	Name             string
	Email            string
	PrimaryContact   string
	SecondaryContact *string

	NationalIDCiphertext  string `json:"-"`
	TaxIDCiphertext       string `json:"-"`
	NationalIDFingerprint string `json:"-"`
	TaxIDFingerprint      string `json:"-"`

	BirthDate        time.Time
	BirthPlace       string
	CurrentAddress   string
	PermanentAddress string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Live reports whether the record has not been soft-deleted.
func (r Record) Live() bool { return r.DeletedAt == nil }

// View is the outbound projection of a Record: plain attributes only.
type View struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PrimaryContact   string    `json:"primary_contact"`
	SecondaryContact *string   `json:"secondary_contact,omitempty"`
	BirthDate        string    `json:"birth_date"`
	BirthPlace       string    `json:"birth_place"`
	CurrentAddress   string    `json:"current_address"`
	PermanentAddress string    `json:"permanent_address"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// View projects the record for callers.
func (r Record) View() View {
	return View{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		PrimaryContact:   r.PrimaryContact,
		SecondaryContact: r.SecondaryContact,
		BirthDate:        r.BirthDate.Format(time.DateOnly),
		BirthPlace:       r.BirthPlace,
		CurrentAddress:   r.CurrentAddress,
		PermanentAddress: r.PermanentAddress,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Secrets holds decrypted identifiers. Never log or embed in a View.
type Secrets struct {
	NationalID string
	TaxID      string
}

// CreateInput describes a new record. NationalID and TaxID are plaintext and
// only live for the duration of the Create call.
type CreateInput struct {
	Name             string
	Email            string
	PrimaryContact   string
	SecondaryContact *string
	NationalID       string
	TaxID            string
	BirthDate        time.Time
	BirthPlace       string
	CurrentAddress   string
	PermanentAddress string
}

// Patch is a partial update. Only fields with IsSet() apply.
// NationalID and TaxID exist so that attempts to change them are detected and rejected.
type Patch struct {
	Name             Optional[string]    `json:"name"`
	Email            Optional[string]    `json:"email"`
	PrimaryContact   Optional[string]    `json:"primary_contact"`
	SecondaryContact Optional[*string]   `json:"secondary_contact"`
	BirthDate        Optional[time.Time] `json:"birth_date"`
	BirthPlace       Optional[string]    `json:"birth_place"`
	CurrentAddress   Optional[string]    `json:"current_address"`
	PermanentAddress Optional[string]    `json:"permanent_address"`

	NationalID Optional[string] `json:"national_id"`
	TaxID      Optional[string] `json:"tax_id"`
}

// Empty reports whether no field was supplied.
func (p Patch) Empty() bool {
	return !p.Name.IsSet() &&
		!p.Email.IsSet() &&
		!p.PrimaryContact.IsSet() &&
		!p.SecondaryContact.IsSet() &&
		!p.BirthDate.IsSet() &&
		!p.BirthPlace.IsSet() &&
		!p.CurrentAddress.IsSet() &&
		!p.PermanentAddress.IsSet() &&
		!p.NationalID.IsSet() &&
		!p.TaxID.IsSet()
}

// Changes is the store-level mutation applied to a live record.
// Identifier fields of the Patch are never read by stores.
// Setting DeletedAt soft-deletes the record (and clears IsActive).
type Changes struct {
	Patch     Patch
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// UniqueField names a globally unique column.
type UniqueField string

const (
	FieldEmail                 UniqueField = "email"
	FieldPrimaryContact        UniqueField = "primary_contact"
	FieldNationalIDFingerprint UniqueField = "national_id"
	FieldTaxIDFingerprint      UniqueField = "tax_id"
)

// Logical field names used in errors.
const (
	fieldName             = "name"
	fieldEmail            = string(FieldEmail)
	fieldPrimaryContact   = string(FieldPrimaryContact)
	fieldSecondaryContact = "secondary_contact"
	fieldNationalID       = string(FieldNationalIDFingerprint)
	fieldTaxID            = string(FieldTaxIDFingerprint)
	fieldBirthDate        = "birth_date"
)

// uniqueValue returns the record's value for a unique field.
func (r Record) uniqueValue(f UniqueField) string {
	switch f {
	case FieldEmail:
		return r.Email
	case FieldPrimaryContact:
		return r.PrimaryContact
	case FieldNationalIDFingerprint:
		return r.NationalIDFingerprint
	case FieldTaxIDFingerprint:
		return r.TaxIDFingerprint
	default:
		return ""
	}
}

// Filter narrows live-record queries.
type Filter struct {
	// Name, when non-empty, matches records whose name contains it (case-insensitive).
	Name string
}

// Store is the record persistence boundary.
//
// Contract:
//   - "Live" means DeletedAt == nil; every *Live method ignores soft-deleted rows.
//   - FindByUniqueField searches ALL rows, soft-deleted included.
//   - Insert and UpdateLive enforce the four unique fields as hard constraints and
//     report clashes as ConstraintViolation.
//   - Missing rows are reported as ErrNotFound.
type Store interface {
	FindByUniqueField(ctx context.Context, field UniqueField, value string) (Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	FindLiveByID(ctx context.Context, id string) (Record, error)
	UpdateLive(ctx context.Context, id string, ch Changes) (Record, error)
	CountLive(ctx context.Context, f Filter) (int, error)
	// ListLive returns live records ordered by CreatedAt descending (ID descending on ties).
	ListLive(ctx context.Context, f Filter, offset, limit int) ([]Record, error)
}

// applyChanges returns r with ch applied (stores share this for consistency).
func applyChanges(r Record, ch Changes) Record {
	p := ch.Patch
	if v, ok := p.Name.Get(); ok {
		r.Name = v
	}
	if v, ok := p.Email.Get(); ok {
		r.Email = v
	}
	if v, ok := p.PrimaryContact.Get(); ok {
		r.PrimaryContact = v
	}
	if v, ok := p.SecondaryContact.Get(); ok {
		r.SecondaryContact = v
	}
	if v, ok := p.BirthDate.Get(); ok {
		r.BirthDate = v
	}
	if v, ok := p.BirthPlace.Get(); ok {
		r.BirthPlace = v
	}
	if v, ok := p.CurrentAddress.Get(); ok {
		r.CurrentAddress = v
	}
	if v, ok := p.PermanentAddress.Get(); ok {
		r.PermanentAddress = v
	}
	if !ch.UpdatedAt.IsZero() {
		r.UpdatedAt = ch.UpdatedAt
	}
	if ch.DeletedAt != nil {
		d := *ch.DeletedAt
		r.DeletedAt = &d
		r.IsActive = false
	}
	return r
}
