package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"timevault/internal/capsule/events"
	txcontext "timevault/pkg/platform/tx"
)

// Outbox reads and retires capsule_outbox rows for the relay.
type Outbox struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db, now: time.Now}
}

// Drain claims up to limit unpublished rows in sequence order, hands them to
// publish and marks them published when publish succeeds. Claimed rows are
// skipped by concurrent relays until this transaction ends. It returns the
// number of rows retired.
func (o *Outbox) Drain(ctx context.Context, limit int, publish func(ctx context.Context, entries []events.OutboxEntry) error) (int, error) {
	sqlTx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox drain: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()
	ctx = txcontext.WithTx(ctx, sqlTx)

	entries, err := o.claim(ctx, limit)
	if err != nil || len(entries) == 0 {
		return 0, err
	}
	if err := publish(ctx, entries); err != nil {
		return 0, err
	}

	seqs := make([]int64, len(entries))
	for i, e := range entries {
		seqs[i] = e.Seq
	}
	if _, err := txcontext.ExecerFrom(ctx, o.db).ExecContext(ctx,
		`UPDATE capsule_outbox SET published_at = $1 WHERE seq = ANY($2)`,
		o.now(), seqs,
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox drain: %w", err)
	}
	return len(entries), nil
}

func (o *Outbox) claim(ctx context.Context, limit int) ([]events.OutboxEntry, error) {
	rows, err := txcontext.ExecerFrom(ctx, o.db).QueryContext(ctx, `
		SELECT seq, id, event_type, aggregate_id, payload
		FROM capsule_outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Pending counts unpublished rows.
func (o *Outbox) Pending(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx,
		`SELECT count(*) FROM capsule_outbox WHERE published_at IS NULL`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return n, nil
}

// Envelopes returns every outbox row, published or not, in sequence order.
func (o *Outbox) Envelopes(ctx context.Context) ([]events.Envelope, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT seq, id, event_type, aggregate_id, payload FROM capsule_outbox ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list outbox rows: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	out := make([]events.Envelope, 0, len(entries))
	for _, e := range entries {
		env, err := events.Decode(e.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func scanEntries(rows *sql.Rows) ([]events.OutboxEntry, error) {
	var out []events.OutboxEntry
	for rows.Next() {
		var (
			e   events.OutboxEntry
			typ string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &typ, &e.Key, &e.Body); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Type = events.Type(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}
