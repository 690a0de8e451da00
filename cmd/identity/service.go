package identity

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxPageSize caps List page sizes.
	MaxPageSize = 50
	// DefaultPageSize applies when the caller passes no limit.
	DefaultPageSize = 10
)

// Sealer is the sensitive-field codec the service depends on (see security/sealer).
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(envelope string) (string, error)
	Fingerprint(plaintext string) string
}

// ListInput selects a page of live records. Page is 1-based.
type ListInput struct {
	Page   int
	Limit  int
	Filter Filter
}

// Pagination describes a List result window.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Page is the outbound List result.
type Page struct {
	Records    []View     `json:"records"`
	Pagination Pagination `json:"pagination"`
}

// Service is the sole reader/writer of records.
// It holds no cached state and is safe for concurrent use; the Store is the only
// shared mutable resource.
type Service struct {
	store   Store
	sealer  Sealer
	log     *slog.Logger
	now     func() time.Time
	metrics *Metrics
	audit   AuditSink
}

// Option configures the Service.
type Option func(*Service) error

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) error {
		if log == nil {
			return ErrInvalidInput
		}
		s.log = log
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return ErrInvalidInput
		}
		s.now = now
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithAudit sets the audit sink for mutations and secret reveals.
func WithAudit(a AuditSink) Option {
	return func(s *Service) error {
		s.audit = a
		return nil
	}
}

// NewService constructs a Service over an explicit store handle and codec.
func NewService(store Store, sealer Sealer, opts ...Option) (*Service, error) {
	if store == nil || sealer == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:  store,
		sealer: sealer,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Create validates, fingerprints, checks uniqueness, seals, and inserts a new record.
//
// Uniqueness is checked in order email, primary_contact, national_id, tax_id against
// all records (soft-deleted included); the first clash wins. The pre-check is an
// optimisation: a concurrent insert that slips past it is caught by the store's
// constraint and reported with the same DuplicateFieldError.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ Record, err error) {
	const op = "identity.Create"

	if s == nil || s.store == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil service"}
	}
	defer s.track("create", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	in, err = normalizeCreate(op, in)
	if err != nil {
		return Record{}, err
	}

	nidFP := s.sealer.Fingerprint(in.NationalID)
	taxFP := s.sealer.Fingerprint(in.TaxID)

	checks := []struct {
		field UniqueField
		value string
	}{
		{FieldEmail, in.Email},
		{FieldPrimaryContact, in.PrimaryContact},
		{FieldNationalIDFingerprint, nidFP},
		{FieldTaxIDFingerprint, taxFP},
	}
	for _, c := range checks {
		taken, err := s.taken(ctx, op, c.field, c.value, "")
		if err != nil {
			return Record{}, err
		}
		if taken {
			s.log.Info("identity.create.duplicate", "field", string(c.field))
			return Record{}, DuplicateFieldError{Op: op, Field: string(c.field)}
		}
	}

	nidCT, err := s.sealer.Seal(in.NationalID)
	if err != nil {
		return Record{}, s.codecErr(op, err)
	}
	taxCT, err := s.sealer.Seal(in.TaxID)
	if err != nil {
		return Record{}, s.codecErr(op, err)
	}

	now := s.clock()
	id, err := NewULID(now)
	if err != nil {
		s.log.Error("identity.create.id.fail", "err", err)
		return Record{}, OpError{Op: op, Kind: ErrInternal, Msg: "id generation failed"}
	}

	out, err := s.store.Insert(ctx, Record{
		ID:                    id,
		Name:                  in.Name,
		Email:                 in.Email,
		PrimaryContact:        in.PrimaryContact,
		SecondaryContact:      in.SecondaryContact,
		NationalIDCiphertext:  nidCT,
		TaxIDCiphertext:       taxCT,
		NationalIDFingerprint: nidFP,
		TaxIDFingerprint:      taxFP,
		BirthDate:             in.BirthDate,
		BirthPlace:            in.BirthPlace,
		CurrentAddress:        in.CurrentAddress,
		PermanentAddress:      in.PermanentAddress,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
		DeletedAt:             nil,
	})
	if err != nil {
		return Record{}, s.storeErr(op, err)
	}

	s.log.Info("identity.create.ok", "record_id", out.ID)
	s.record(ctx, AuditRecordCreated, out.ID, now, nil)
	return out, nil
}

// Update applies a partial patch to a live record.
// National ID and tax ID can never change; supplying either fails with ImmutableFieldError.
func (s *Service) Update(ctx context.Context, id string, p Patch) (_ Record, err error) {
	const op = "identity.Update"

	if s == nil || s.store == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil service"}
	}
	defer s.track("update", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	if p.Empty() {
		return Record{}, ValidationError{Op: op, Msg: "empty patch"}
	}
	if p.NationalID.IsSet() {
		return Record{}, ImmutableFieldError{Op: op, Field: fieldNationalID}
	}
	if p.TaxID.IsSet() {
		return Record{}, ImmutableFieldError{Op: op, Field: fieldTaxID}
	}

	p, err = normalizePatch(op, p)
	if err != nil {
		return Record{}, err
	}

	cur, err := s.findLive(ctx, op, id)
	if err != nil {
		return Record{}, err
	}

	if v, ok := p.Email.Get(); ok && v != cur.Email {
		if err := s.ensureFree(ctx, op, FieldEmail, v, cur.ID); err != nil {
			return Record{}, err
		}
	}
	if v, ok := p.PrimaryContact.Get(); ok && v != cur.PrimaryContact {
		if err := s.ensureFree(ctx, op, FieldPrimaryContact, v, cur.ID); err != nil {
			return Record{}, err
		}
	}

	now := laterOf(s.clock(), cur.UpdatedAt)
	out, err := s.store.UpdateLive(ctx, cur.ID, Changes{Patch: p, UpdatedAt: now})
	if err != nil {
		return Record{}, s.storeErr(op, err)
	}

	fields := p.fieldNames()
	s.log.Info("identity.update.ok", "record_id", out.ID, "fields", fields)
	s.record(ctx, AuditRecordUpdated, out.ID, now, map[string]any{"fields": fields})
	return out, nil
}

// Get returns a live record.
func (s *Service) Get(ctx context.Context, id string) (_ Record, err error) {
	const op = "identity.Get"

	if s == nil || s.store == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil service"}
	}
	defer s.track("get", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	return s.findLive(ctx, op, id)
}

// List returns a page of live records, newest first.
// Page < 1 is treated as 1; Limit is capped at MaxPageSize and defaults to DefaultPageSize.
// The page slice and total are read concurrently; under concurrent writes they are
// consistent on a best-effort basis only.
func (s *Service) List(ctx context.Context, in ListInput) (_ Page, err error) {
	const op = "identity.List"

	if s == nil || s.store == nil {
		return Page{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil service"}
	}
	defer s.track("list", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	page, limit := clampPage(in.Page, in.Limit)
	filter := Filter{Name: strings.TrimSpace(in.Filter.Name)}

	var (
		recs  []Record
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	// An offset past math.MaxInt is past any stored row: only the total is read.
	if page-1 <= math.MaxInt/limit {
		offset := (page - 1) * limit
		g.Go(func() error {
			r, err := s.store.ListLive(gctx, filter, offset, limit)
			recs = r
			return err
		})
	}
	g.Go(func() error {
		n, err := s.store.CountLive(gctx, filter)
		total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, s.storeErr(op, err)
	}

	views := make([]View, 0, len(recs))
	for _, r := range recs {
		views = append(views, r.View())
	}

	return Page{
		Records: views,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// Delete soft-deletes a live record. Deleting a missing or already deleted record
// fails with NotFoundError, so Delete is not idempotent.
// The record's unique values stay reserved forever.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	const op = "identity.Delete"

	if s == nil || s.store == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil service"}
	}
	defer s.track("delete", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}

	cur, err := s.findLive(ctx, op, id)
	if err != nil {
		return err
	}

	now := laterOf(s.clock(), cur.UpdatedAt)
	// UpdateLive only matches live rows, so a concurrent delete loses with ErrNotFound.
	if _, err := s.store.UpdateLive(ctx, cur.ID, Changes{UpdatedAt: now, DeletedAt: &now}); err != nil {
		return s.storeErr(op, err)
	}

	s.log.Info("identity.delete.ok", "record_id", cur.ID)
	s.record(ctx, AuditRecordDeleted, cur.ID, now, nil)
	return nil
}

// RevealSecrets decrypts the identifiers of a live record.
// The result must never be logged or embedded in a View; access control is the caller's.
func (s *Service) RevealSecrets(ctx context.Context, id string) (_ Secrets, err error) {
	const op = "identity.RevealSecrets"

	if s == nil || s.store == nil {
		return Secrets{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil service"}
	}
	defer s.track("reveal", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return Secrets{}, err
	}

	cur, err := s.findLive(ctx, op, id)
	if err != nil {
		return Secrets{}, err
	}

	nid, err := s.sealer.Open(cur.NationalIDCiphertext)
	if err != nil {
		return Secrets{}, s.codecErr(op, err)
	}
	tax, err := s.sealer.Open(cur.TaxIDCiphertext)
	if err != nil {
		return Secrets{}, s.codecErr(op, err)
	}

	s.log.Info("identity.reveal.ok", "record_id", cur.ID)
	s.record(ctx, AuditSecretsRevealed, cur.ID, s.clock(), nil)
	return Secrets{NationalID: nid, TaxID: tax}, nil
}

// ---- helpers ----

func (s *Service) clock() time.Time {
	// Microsecond precision matches PostgreSQL timestamptz, so both stores agree.
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) track(op string, start time.Time, errp *error) {
	s.metrics.observe(op, start, *errp)
}

func (s *Service) record(ctx context.Context, action, recordID string, at time.Time, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordEvent(ctx, AuditEvent{Action: action, RecordID: recordID, At: at, Meta: meta})
}

func (s *Service) findLive(ctx context.Context, op, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, NotFoundError{Op: op, Resource: "record"}
	}
	rec, err := s.store.FindLiveByID(ctx, id)
	if err != nil {
		return Record{}, s.storeErr(op, err)
	}
	return rec, nil
}

// taken reports whether value is held by a record other than selfID (deleted rows count).
func (s *Service) taken(ctx context.Context, op string, field UniqueField, value, selfID string) (bool, error) {
	rec, err := s.store.FindByUniqueField(ctx, field, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, s.storeErr(op, err)
	}
	return rec.ID != selfID, nil
}

func (s *Service) ensureFree(ctx context.Context, op string, field UniqueField, value, selfID string) error {
	taken, err := s.taken(ctx, op, field, value, selfID)
	if err != nil {
		return err
	}
	if taken {
		s.log.Info("identity.update.duplicate", "field", string(field))
		return DuplicateFieldError{Op: op, Field: string(field)}
	}
	return nil
}

// storeErr maps store failures onto the service error family.
// Raw driver errors are logged, never returned.
func (s *Service) storeErr(op string, err error) error {
	var cv ConstraintViolation
	switch {
	case errors.As(err, &cv) && isUniqueField(cv.Field):
		s.log.Info("identity.store.constraint", "op", op, "field", cv.Field)
		return DuplicateFieldError{Op: op, Field: cv.Field}
	case errors.Is(err, ErrNotFound):
		return NotFoundError{Op: op, Resource: "record"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		s.log.Error("identity.store.fail", "op", op, "err", err)
		return OpError{Op: op, Kind: ErrInternal, Msg: "store failure"}
	}
}

func (s *Service) codecErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrEncryptionConfig):
		s.log.Error("identity.codec.key_config", "op", op, "err", err)
		return OpError{Op: op, Kind: ErrEncryptionConfig}
	case errors.Is(err, ErrDecryption):
		s.log.Error("identity.codec.decrypt.fail", "op", op, "err", err)
		return OpError{Op: op, Kind: ErrDecryption}
	default:
		s.log.Error("identity.codec.fail", "op", op, "err", err)
		return OpError{Op: op, Kind: ErrInternal, Msg: "codec failure"}
	}
}

// isUniqueField reports whether name is one of the caller-facing unique fields.
// Clashes on anything else (primary key, unmapped constraints) are internal.
func isUniqueField(name string) bool {
	_, ok := uniqueColumns[UniqueField(name)]
	return ok
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}

func normalizeCreate(op string, in CreateInput) (CreateInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.PrimaryContact = NormalizeContact(in.PrimaryContact)
	in.SecondaryContact = trimPtr(in.SecondaryContact)
	in.NationalID = NormalizeIdentifier(in.NationalID)
	in.TaxID = NormalizeIdentifier(in.TaxID)
	in.BirthPlace = strings.TrimSpace(in.BirthPlace)
	in.CurrentAddress = strings.TrimSpace(in.CurrentAddress)
	in.PermanentAddress = strings.TrimSpace(in.PermanentAddress)

	required := []struct {
		field string
		value string
	}{
		{fieldName, in.Name},
		{fieldEmail, in.Email},
		{fieldPrimaryContact, in.PrimaryContact},
		{fieldNationalID, in.NationalID},
		{fieldTaxID, in.TaxID},
	}
	for _, r := range required {
		if r.value == "" {
			return CreateInput{}, ValidationError{Op: op, Field: r.field, Msg: "required"}
		}
	}
	if in.BirthDate.IsZero() {
		return CreateInput{}, ValidationError{Op: op, Field: fieldBirthDate, Msg: "required"}
	}
	in.BirthDate = normalizeDate(in.BirthDate)
	return in, nil
}

func normalizePatch(op string, p Patch) (Patch, error) {
	out := Patch{
		SecondaryContact: p.SecondaryContact,
	}

	if v, ok := p.Name.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return Patch{}, ValidationError{Op: op, Field: fieldName, Msg: "must not be blank"}
		}
		out.Name = Some(v)
	}
	if v, ok := p.Email.Get(); ok {
		v = NormalizeEmail(v)
		if v == "" {
			return Patch{}, ValidationError{Op: op, Field: fieldEmail, Msg: "must not be blank"}
		}
		out.Email = Some(v)
	}
	if v, ok := p.PrimaryContact.Get(); ok {
		v = NormalizeContact(v)
		if v == "" {
			return Patch{}, ValidationError{Op: op, Field: fieldPrimaryContact, Msg: "must not be blank"}
		}
		out.PrimaryContact = Some(v)
	}
	if v, ok := p.SecondaryContact.Get(); ok {
		out.SecondaryContact = Some(trimPtr(v))
	}
	if v, ok := p.BirthDate.Get(); ok {
		if v.IsZero() {
			return Patch{}, ValidationError{Op: op, Field: fieldBirthDate, Msg: "must not be zero"}
		}
		out.BirthDate = Some(normalizeDate(v))
	}
	if v, ok := p.BirthPlace.Get(); ok {
		out.BirthPlace = Some(strings.TrimSpace(v))
	}
	if v, ok := p.CurrentAddress.Get(); ok {
		out.CurrentAddress = Some(strings.TrimSpace(v))
	}
	if v, ok := p.PermanentAddress.Get(); ok {
		out.PermanentAddress = Some(strings.TrimSpace(v))
	}
	return out, nil
}

// fieldNames lists supplied fields (names only; values never leave the patch).
func (p Patch) fieldNames() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Name.IsSet(), fieldName)
	add(p.Email.IsSet(), fieldEmail)
	add(p.PrimaryContact.IsSet(), fieldPrimaryContact)
	add(p.SecondaryContact.IsSet(), fieldSecondaryContact)
	add(p.BirthDate.IsSet(), fieldBirthDate)
	add(p.BirthPlace.IsSet(), "birth_place")
	add(p.CurrentAddress.IsSet(), "current_address")
	add(p.PermanentAddress.IsSet(), "permanent_address")
	return out
}
