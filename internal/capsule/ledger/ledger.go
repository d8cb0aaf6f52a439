// Package ledger defines the transactional boundary that capsule operations
// run inside, shared by the memory, PostgreSQL and Redis backends.
package ledger

import (
	"context"
	"sort"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/models"
)

// Ledger runs fn as one atomic unit. Either every write made through tx and
// every appended event commits, or none do. fn's error is returned unchanged.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the ledger as seen from inside one transaction. Reads return records
// the transaction may modify; backends keep other writers away from them until
// commit. Lookups of missing records return sentinel.ErrNotFound; inserts over
// an existing record return sentinel.ErrAlreadyExists.
type Tx interface {
	Registry(ctx context.Context) (*models.Registry, error)
	InsertRegistry(ctx context.Context, r *models.Registry) error
	UpdateRegistry(ctx context.Context, r *models.Registry) error

	Capsule(ctx context.Context, addr address.Address) (*models.Capsule, error)
	InsertCapsule(ctx context.Context, c *models.Capsule) error
	UpdateCapsule(ctx context.Context, c *models.Capsule) error
	DeleteCapsule(ctx context.Context, addr address.Address) error

	Append(ctx context.Context, env events.Envelope) error
}

// Reader serves reads outside any transaction.
type Reader interface {
	GetRegistry(ctx context.Context) (*models.Registry, error)
	GetCapsule(ctx context.Context, addr address.Address) (*models.Capsule, error)
}

// RegistryKey is the lock key of the singleton registry record.
const RegistryKey = "registry"

// CapsuleKey is the lock key of the capsule stored at addr.
func CapsuleKey(addr address.Address) string {
	return "capsule:" + addr.String()
}

type keysCtxKey struct{}

// WithKeys declares the records a transaction is about to touch. Backends that
// lock or watch up front (memory, Redis) read them before running fn; the
// PostgreSQL backend locks rows as they are read and ignores them.
func WithKeys(ctx context.Context, keys ...string) context.Context {
	return context.WithValue(ctx, keysCtxKey{}, keys)
}

// Keys returns the declared keys, deduplicated and sorted so that every caller
// acquires locks in the same order.
func Keys(ctx context.Context) []string {
	keys, _ := ctx.Value(keysCtxKey{}).([]string)
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
