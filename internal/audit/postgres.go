package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL for durable compliance retention.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec Record) error {
	details := []byte("{}")
	if len(rec.Details) > 0 {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return err
		}
		details = raw
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events(id, occurred_at, event_type, subject, tenant_id, resource, action, outcome, request_id, details)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.OccurredAt, rec.EventType, rec.Subject, rec.TenantID,
		rec.Resource, rec.Action, string(rec.Outcome), rec.RequestID, details)
	return err
}

func (s *PGStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Subject != "" {
		add("subject = $%d", f.Subject)
	}
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}

	query := `
		select id, occurred_at, event_type, subject, tenant_id, resource, action, outcome, request_id, details
		from audit_events`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" order by occurred_at desc limit $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			outcome string
			details []byte
		)
		if err := rows.Scan(&rec.ID, &rec.OccurredAt, &rec.EventType, &rec.Subject, &rec.TenantID,
			&rec.Resource, &rec.Action, &outcome, &rec.RequestID, &details); err != nil {
			return nil, err
		}
		rec.Outcome = Outcome(outcome)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from audit_events where occurred_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
