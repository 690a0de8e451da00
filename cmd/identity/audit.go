package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions written by the service.
const (
	AuditRecordCreated   = "identity.record.created"
	AuditRecordUpdated   = "identity.record.updated"
	AuditRecordDeleted   = "identity.record.deleted"
	AuditSecretsRevealed = "identity.record.secrets_revealed"
)

// AuditEvent is one audit trail entry. Meta holds field names only, never values.
type AuditEvent struct {
	ID       string
	Action   string
	RecordID string
	At       time.Time
	Meta     map[string]any
}

// AuditSink receives audit events. Implementations must not fail the calling operation.
type AuditSink interface {
	RecordEvent(ctx context.Context, ev AuditEvent)
}

// PostgresAuditLog appends audit events to <schema>.audit_log.
//
// Failures are logged and swallowed; the record mutation has already committed.
type PostgresAuditLog struct {
	pool   *pgxpool.Pool
	schema string
	log    *slog.Logger
}

// NewPostgresAuditLog constructs an audit sink. The pool is owned by the caller.
func NewPostgresAuditLog(pool *pgxpool.Pool, log *slog.Logger, opts ...PostgresOption) (*PostgresAuditLog, error) {
	// Reuse the store options so both share one schema setting.
	st := &PostgresStore{pool: pool, schema: defaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditLog{pool: pool, schema: st.schema, log: log}, nil
}

// RecordEvent inserts ev. It assigns an ID and timestamp when missing.
func (a *PostgresAuditLog) RecordEvent(ctx context.Context, ev AuditEvent) {
	if a == nil || a.pool == nil {
		return
	}

	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	auditLog := pgIdent(a.schema, "audit_log")
	_, err := a.pool.Exec(ctx,
		`INSERT INTO `+auditLog+` (id, action, record_id, created_at, meta)
		 VALUES ($1, $2, $3, $4, $5::jsonb)`,
		ev.ID, action, nilIfEmpty(ev.RecordID), ev.At, metaVal,
	)
	if err != nil {
		a.log.Error("identity.audit.insert.fail", "err", err, "action", action)
	}
}

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
