package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
// It enforces the same unique constraints as the Postgres schema (across all rows,
// soft-deleted included). Records are copied in and out; callers never share state.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Record)}
}

var uniqueFields = []UniqueField{
	FieldEmail,
	FieldPrimaryContact,
	FieldNationalIDFingerprint,
	FieldTaxIDFingerprint,
}

func (m *MemoryStore) FindByUniqueField(ctx context.Context, field UniqueField, value string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if _, ok := uniqueColumns[field]; !ok {
		return Record{}, OpError{Op: "identity.FindByUniqueField", Kind: ErrInvalidInput, Msg: "unknown unique field"}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rows {
		if r.uniqueValue(field) == value {
			return cloneRecord(r), nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *MemoryStore) Insert(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return Record{}, OpError{Op: "identity.Insert", Kind: ErrInvalidInput, Msg: "missing id"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[rec.ID]; ok {
		return Record{}, ConstraintViolation{Field: "id", Constraint: "records_pkey"}
	}
	if err := m.checkUniqueLocked(rec, ""); err != nil {
		return Record{}, err
	}
	m.rows[rec.ID] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

func (m *MemoryStore) FindLiveByID(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rows[id]
	if !ok || !r.Live() {
		return Record{}, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (m *MemoryStore) UpdateLive(ctx context.Context, id string, ch Changes) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[id]
	if !ok || !cur.Live() {
		return Record{}, ErrNotFound
	}
	next := applyChanges(cloneRecord(cur), ch)
	if err := m.checkUniqueLocked(next, id); err != nil {
		return Record{}, err
	}
	m.rows[id] = next
	return cloneRecord(next), nil
}

func (m *MemoryStore) CountLive(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.rows {
		if r.Live() && f.matches(r) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListLive(ctx context.Context, f Filter, offset, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, OpError{Op: "identity.ListLive", Kind: ErrInvalidInput, Msg: "invalid window"}
	}

	m.mu.RLock()
	live := make([]Record, 0, len(m.rows))
	for _, r := range m.rows {
		if r.Live() && f.matches(r) {
			live = append(live, cloneRecord(r))
		}
	}
	m.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.After(live[j].CreatedAt)
		}
		return live[i].ID > live[j].ID
	})

	if offset >= len(live) {
		return []Record{}, nil
	}
	end := offset + limit
	if end > len(live) {
		end = len(live)
	}
	return live[offset:end], nil
}

// checkUniqueLocked reports the first unique field of rec held by another row.
func (m *MemoryStore) checkUniqueLocked(rec Record, selfID string) error {
	for _, f := range uniqueFields {
		v := rec.uniqueValue(f)
		for id, r := range m.rows {
			if id == selfID {
				continue
			}
			if r.uniqueValue(f) == v {
				return ConstraintViolation{Field: string(f)}
			}
		}
	}
	return nil
}

func (f Filter) matches(r Record) bool {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Name), strings.ToLower(name))
}

func cloneRecord(r Record) Record {
	if r.SecondaryContact != nil {
		v := *r.SecondaryContact
		r.SecondaryContact = &v
	}
	if r.DeletedAt != nil {
		v := *r.DeletedAt
		r.DeletedAt = &v
	}
	return r
}

var _ Store = (*MemoryStore)(nil)
