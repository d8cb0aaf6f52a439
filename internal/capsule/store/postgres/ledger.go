// Package postgres stores the capsule ledger in PostgreSQL.
//
// Each RunInTx is one SQL transaction. Rows are locked with SELECT ... FOR
// UPDATE as they are read, so operations on the same capsule serialize and
// every creation serializes on the registry row. Events go to the
// capsule_outbox table in the same transaction and a NOTIFY wakes the relay.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/sentinel"
	txcontext "timevault/pkg/platform/tx"
)

// NotifyChannel is the LISTEN/NOTIFY channel signalled on every outbox insert.
const NotifyChannel = "capsule_outbox"

const defaultTxTimeout = 5 * time.Second

const uniqueViolation = "23505"

// Ledger implements ledger.Ledger and ledger.Reader over *sql.DB.
type Ledger struct {
	db      *sql.DB
	timeout time.Duration
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, timeout: defaultTxTimeout}
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, sqlTx)
	if err := fn(txCtx, &pgTx{}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

// GetRegistry reads the registry without locking it.
func (l *Ledger) GetRegistry(ctx context.Context) (*models.Registry, error) {
	return scanRegistry(l.db.QueryRowContext(ctx, selectRegistry))
}

// GetCapsule reads a capsule without locking it.
func (l *Ledger) GetCapsule(ctx context.Context, addr address.Address) (*models.Capsule, error) {
	return scanCapsule(l.db.QueryRowContext(ctx, selectCapsule, addr.String()))
}

// pgTx resolves the *sql.Tx from the context handed to fn, so statements
// always join the enclosing transaction.
type pgTx struct{}

func (t *pgTx) exec(ctx context.Context) (txcontext.Execer, error) {
	sqlTx, ok := txcontext.From(ctx)
	if !ok {
		return nil, errors.New("ledger statement outside transaction")
	}
	return sqlTx, nil
}

const selectRegistry = `
	SELECT authority, total_capsules, version
	FROM capsule_registry
	WHERE singleton`

func (t *pgTx) Registry(ctx context.Context) (*models.Registry, error) {
	ex, err := t.exec(ctx)
	if err != nil {
		return nil, err
	}
	return scanRegistry(ex.QueryRowContext(ctx, selectRegistry+` FOR UPDATE`))
}

func (t *pgTx) InsertRegistry(ctx context.Context, r *models.Registry) error {
	ex, err := t.exec(ctx)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO capsule_registry (singleton, authority, total_capsules, version)
		VALUES (TRUE, $1, $2, $3)`,
		uuid.UUID(r.Authority), int64(r.TotalCapsules), int16(r.Version),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert registry: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRegistry(ctx context.Context, r *models.Registry) error {
	ex, err := t.exec(ctx)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE capsule_registry SET total_capsules = $1 WHERE singleton`,
		int64(r.TotalCapsules),
	)
	if err != nil {
		return fmt.Errorf("update registry: %w", err)
	}
	return requireRow(res)
}

const capsuleColumns = `address, creator, owner, seq, title, content, encrypted_url, unlock_date,
	is_unlocked, created_at, updated_at, transferred_at, mint, mint_creator, bump`

const selectCapsule = `SELECT ` + capsuleColumns + ` FROM capsules WHERE address = $1`

func (t *pgTx) Capsule(ctx context.Context, addr address.Address) (*models.Capsule, error) {
	ex, err := t.exec(ctx)
	if err != nil {
		return nil, err
	}
	return scanCapsule(ex.QueryRowContext(ctx, selectCapsule+` FOR UPDATE`, addr.String()))
}

func (t *pgTx) InsertCapsule(ctx context.Context, c *models.Capsule) error {
	ex, err := t.exec(ctx)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO capsules (`+capsuleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.Address.String(),
		uuid.UUID(c.Creator),
		uuid.UUID(c.Owner),
		int64(c.ID),
		c.Title,
		c.Content,
		nullString(c.EncryptedURL),
		c.UnlockDate,
		c.IsUnlocked,
		c.CreatedAt,
		c.UpdatedAt,
		nullTime(c.TransferredAt),
		nullIdentity(c.Mint),
		nullIdentity(c.MintCreator),
		int16(c.Bump),
	)
	if isUniqueViolation(err) {
		return sentinel.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert capsule: %w", err)
	}
	return nil
}

// UpdateCapsule writes the mutable columns. Address, creator, seq, title,
// created_at and bump are never rewritten.
func (t *pgTx) UpdateCapsule(ctx context.Context, c *models.Capsule) error {
	ex, err := t.exec(ctx)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE capsules SET
			owner = $2,
			content = $3,
			encrypted_url = $4,
			unlock_date = $5,
			is_unlocked = $6,
			updated_at = $7,
			transferred_at = $8,
			mint = $9,
			mint_creator = $10
		WHERE address = $1`,
		c.Address.String(),
		uuid.UUID(c.Owner),
		c.Content,
		nullString(c.EncryptedURL),
		c.UnlockDate,
		c.IsUnlocked,
		c.UpdatedAt,
		nullTime(c.TransferredAt),
		nullIdentity(c.Mint),
		nullIdentity(c.MintCreator),
	)
	if err != nil {
		return fmt.Errorf("update capsule: %w", err)
	}
	return requireRow(res)
}

func (t *pgTx) DeleteCapsule(ctx context.Context, addr address.Address) error {
	ex, err := t.exec(ctx)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `DELETE FROM capsules WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("delete capsule: %w", err)
	}
	return requireRow(res)
}

// Append writes env to the outbox and signals the relay. NOTIFY is delivered
// only when the transaction commits.
func (t *pgTx) Append(ctx context.Context, env events.Envelope) error {
	ex, err := t.exec(ctx)
	if err != nil {
		return err
	}
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if _, err := ex.ExecContext(ctx, `
		INSERT INTO capsule_outbox (id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		env.ID, string(env.Type), env.Key(), body, env.OccurredAt,
	); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	if _, err := ex.ExecContext(ctx, `SELECT pg_notify($1, '')`, NotifyChannel); err != nil {
		return fmt.Errorf("notify outbox: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistry(row rowScanner) (*models.Registry, error) {
	var (
		authority uuid.UUID
		total     int64
		version   int16
	)
	if err := row.Scan(&authority, &total, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan registry: %w", err)
	}
	return &models.Registry{
		Authority:     id.Identity(authority),
		TotalCapsules: uint64(total),
		Version:       uint8(version),
	}, nil
}

func scanCapsule(row rowScanner) (*models.Capsule, error) {
	var (
		c             models.Capsule
		addr          string
		creator       uuid.UUID
		owner         uuid.UUID
		seq           int64
		encryptedURL  sql.NullString
		transferredAt sql.NullTime
		mint          uuid.NullUUID
		mintCreator   uuid.NullUUID
		bump          int16
	)
	err := row.Scan(&addr, &creator, &owner, &seq, &c.Title, &c.Content, &encryptedURL, &c.UnlockDate,
		&c.IsUnlocked, &c.CreatedAt, &c.UpdatedAt, &transferredAt, &mint, &mintCreator, &bump)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan capsule: %w", err)
	}

	parsed, err := address.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("scan capsule address: %w", err)
	}
	c.Address = parsed
	c.Creator = id.Identity(creator)
	c.Owner = id.Identity(owner)
	c.ID = uint64(seq)
	c.Bump = uint8(bump)
	c.UnlockDate = c.UnlockDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if encryptedURL.Valid {
		v := encryptedURL.String
		c.EncryptedURL = &v
	}
	if transferredAt.Valid {
		v := transferredAt.Time.UTC()
		c.TransferredAt = &v
	}
	if mint.Valid {
		v := id.Identity(mint.UUID)
		c.Mint = &v
	}
	if mintCreator.Valid {
		v := id.Identity(mintCreator.UUID)
		c.MintCreator = &v
	}
	return &c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullIdentity(i *id.Identity) uuid.NullUUID {
	if i == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*i), Valid: true}
}
