package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements record persistence over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
//   - The four unique columns carry UNIQUE constraints over all rows (deleted included);
//     violations surface as ConstraintViolation with the logical field name.
//   - UpdateLive is a single conditional UPDATE ... WHERE deleted_at IS NULL, so a
//     concurrent soft delete can never be overwritten.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

const defaultSchema = "idvault"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the record store (default "idvault").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: defaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const recordColumns = `id, name, email, primary_contact, secondary_contact,
	national_id_ct, tax_id_ct, national_id_fp, tax_id_fp,
	birth_date, birth_place, current_address, permanent_address,
	is_active, created_at, updated_at, deleted_at`

// uniqueColumns maps logical unique fields to columns.
var uniqueColumns = map[UniqueField]string{
	FieldEmail:                 "email",
	FieldPrimaryContact:        "primary_contact",
	FieldNationalIDFingerprint: "national_id_fp",
	FieldTaxIDFingerprint:      "tax_id_fp",
}

// FindByUniqueField looks up any row (live or soft-deleted) holding value.
func (s *PostgresStore) FindByUniqueField(ctx context.Context, field UniqueField, value string) (Record, error) {
	const op = "identity.FindByUniqueField"

	if s == nil || s.pool == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	col, ok := uniqueColumns[field]
	if !ok {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown unique field"}
	}

	records := pgIdent(s.schema, "records")
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+records+`
		  WHERE `+col+` = $1
		  LIMIT 1`,
		value,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Insert writes a new record row.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.Insert"

	if s == nil || s.pool == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return Record{}, pgInvalid(op, "missing id")
	}

	records := pgIdent(s.schema, "records")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+records+` (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID,
		rec.Name,
		rec.Email,
		rec.PrimaryContact,
		rec.SecondaryContact,
		rec.NationalIDCiphertext,
		rec.TaxIDCiphertext,
		rec.NationalIDFingerprint,
		rec.TaxIDFingerprint,
		rec.BirthDate,
		rec.BirthPlace,
		rec.CurrentAddress,
		rec.PermanentAddress,
		rec.IsActive,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.DeletedAt,
	)
	if err != nil {
		if cv, ok := pgClassifyUniqueViolation(err); ok {
			return Record{}, cv
		}
		return Record{}, err
	}
	return rec, nil
}

// FindLiveByID returns a record that has not been soft-deleted.
func (s *PostgresStore) FindLiveByID(ctx context.Context, id string) (Record, error) {
	const op = "identity.FindLiveByID"

	if s == nil || s.pool == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	records := pgIdent(s.schema, "records")
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+records+`
		  WHERE id = $1
		    AND deleted_at IS NULL`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// UpdateLive applies ch to a live record and returns the updated row.
// Returns ErrNotFound when the record is missing or already soft-deleted.
func (s *PostgresStore) UpdateLive(ctx context.Context, id string, ch Changes) (Record, error) {
	const op = "identity.UpdateLive"

	if s == nil || s.pool == nil {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	p := ch.Patch
	if v, ok := p.Name.Get(); ok {
		set("name", v)
	}
	if v, ok := p.Email.Get(); ok {
		set("email", v)
	}
	if v, ok := p.PrimaryContact.Get(); ok {
		set("primary_contact", v)
	}
	if v, ok := p.SecondaryContact.Get(); ok {
		set("secondary_contact", v)
	}
	if v, ok := p.BirthDate.Get(); ok {
		set("birth_date", v)
	}
	if v, ok := p.BirthPlace.Get(); ok {
		set("birth_place", v)
	}
	if v, ok := p.CurrentAddress.Get(); ok {
		set("current_address", v)
	}
	if v, ok := p.PermanentAddress.Get(); ok {
		set("permanent_address", v)
	}
	if !ch.UpdatedAt.IsZero() {
		set("updated_at", ch.UpdatedAt)
	}
	if ch.DeletedAt != nil {
		set("deleted_at", *ch.DeletedAt)
		set("is_active", false)
	}
	if len(sets) == 0 {
		return Record{}, pgInvalid(op, "no changes")
	}

	args = append(args, id)
	records := pgIdent(s.schema, "records")
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE `+records+`
		    SET `+strings.Join(sets, ", ")+`
		  WHERE id = $`+strconv.Itoa(len(args))+`
		    AND deleted_at IS NULL
		  RETURNING `+recordColumns,
		args...,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		if cv, ok := pgClassifyUniqueViolation(err); ok {
			return Record{}, cv
		}
		return Record{}, err
	}
	return rec, nil
}

// CountLive counts live records matching f.
func (s *PostgresStore) CountLive(ctx context.Context, f Filter) (int, error) {
	const op = "identity.CountLive"

	if s == nil || s.pool == nil {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	where, args := liveWhere(f)
	records := pgIdent(s.schema, "records")

	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+records+` WHERE `+where,
		args...,
	).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListLive returns live records ordered by created_at DESC, id DESC.
func (s *PostgresStore) ListLive(ctx context.Context, f Filter, offset, limit int) ([]Record, error) {
	const op = "identity.ListLive"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, pgInvalid(op, "invalid window")
	}

	where, args := liveWhere(f)
	args = append(args, limit, offset)
	records := pgIdent(s.schema, "records")

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+`
		   FROM `+records+`
		  WHERE `+where+`
		  ORDER BY created_at DESC, id DESC
		  LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- helpers ----

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Email,
		&r.PrimaryContact,
		&r.SecondaryContact,
		&r.NationalIDCiphertext,
		&r.TaxIDCiphertext,
		&r.NationalIDFingerprint,
		&r.TaxIDFingerprint,
		&r.BirthDate,
		&r.BirthPlace,
		&r.CurrentAddress,
		&r.PermanentAddress,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.DeletedAt,
	)
	if err != nil {
		return Record{}, err
	}
	r.BirthDate = normalizeDate(r.BirthDate)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if r.DeletedAt != nil {
		d := r.DeletedAt.UTC()
		r.DeletedAt = &d
	}
	return r, nil
}

// liveWhere builds the live-row predicate; positional args start at $1.
func liveWhere(f Filter) (string, []any) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return "deleted_at IS NULL", nil
	}
	return `deleted_at IS NULL AND name ILIKE $1 ESCAPE '\'`, []any{"%" + escapeLike(name) + "%"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (ConstraintViolation, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ConstraintViolation{}, false
	}
	if pgErr.Code != "23505" { // unique_violation
		return ConstraintViolation{}, false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	cv := ConstraintViolation{Constraint: pgErr.ConstraintName}

	switch c {
	case "uq_records_email":
		cv.Field = fieldEmail
	case "uq_records_primary_contact":
		cv.Field = fieldPrimaryContact
	case "uq_records_national_id_fp":
		cv.Field = fieldNationalID
	case "uq_records_tax_id_fp":
		cv.Field = fieldTaxID
	default:
		switch {
		case strings.Contains(c, "email"):
			cv.Field = fieldEmail
		case strings.Contains(c, "primary_contact"):
			cv.Field = fieldPrimaryContact
		case strings.Contains(c, "national"):
			cv.Field = fieldNationalID
		case strings.Contains(c, "tax"):
			cv.Field = fieldTaxID
		default:
			cv.Field = "unique"
		}
	}
	return cv, true
}

var _ Store = (*PostgresStore)(nil)
