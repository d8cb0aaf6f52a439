// Package memory is an in-process capsule ledger.
//
// Transactions serialize on sharded mutexes selected by the keys declared with
// ledger.WithKeys and stage their writes until fn returns, so a failed
// operation leaves no trace.
package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/sentinel"
)

const numShards = 128

const defaultTxTimeout = 5 * time.Second

// Ledger keeps committed state in maps guarded by mu. Shard locks serialize
// transactions over the same keys; mu only protects the maps themselves.
type Ledger struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration

	mu       sync.RWMutex
	registry *models.Registry
	capsules map[address.Address]*models.Capsule
	log      []events.Envelope
}

type Option func(*Ledger)

// WithTimeout bounds transactions whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.timeout = d
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		timeout:  defaultTxTimeout,
		capsules: make(map[address.Address]*models.Capsule),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	shards := l.selectShards(ledger.Keys(ctx))
	for _, s := range shards {
		l.shards[s].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			l.shards[shards[i]].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memTx{ledger: l, capsules: make(map[address.Address]*models.Capsule)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	l.commit(tx)
	return nil
}

// selectShards maps keys to distinct shard indexes in ascending order.
// Transactions without declared keys share shard 0.
func (l *Ledger) selectShards(keys []string) []int {
	if len(keys) == 0 {
		return []int{0}
	}
	set := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		h := fnv.New32a()
		_, _ = h.Write([]byte(k))
		set[int(h.Sum32()%numShards)] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func (l *Ledger) commit(tx *memTx) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.registry != nil {
		l.registry = tx.registry.Clone()
	}
	for addr, c := range tx.capsules {
		if c == nil {
			delete(l.capsules, addr)
			continue
		}
		l.capsules[addr] = c.Clone()
	}
	l.log = append(l.log, tx.events...)
}

// GetRegistry reads the committed registry.
func (l *Ledger) GetRegistry(_ context.Context) (*models.Registry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.registry == nil {
		return nil, sentinel.ErrNotFound
	}
	return l.registry.Clone(), nil
}

// GetCapsule reads a committed capsule.
func (l *Ledger) GetCapsule(_ context.Context, addr address.Address) (*models.Capsule, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.capsules[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// Events returns a copy of every committed envelope in commit order.
func (l *Ledger) Events() []events.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]events.Envelope, len(l.log))
	copy(out, l.log)
	return out
}

// memTx stages writes. A nil entry in capsules marks a deletion.
type memTx struct {
	ledger   *Ledger
	registry *models.Registry
	capsules map[address.Address]*models.Capsule
	events   []events.Envelope
}

func (t *memTx) Registry(ctx context.Context) (*models.Registry, error) {
	if t.registry != nil {
		return t.registry.Clone(), nil
	}
	return t.ledger.GetRegistry(ctx)
}

func (t *memTx) InsertRegistry(ctx context.Context, r *models.Registry) error {
	if _, err := t.Registry(ctx); err == nil {
		return sentinel.ErrAlreadyExists
	}
	t.registry = r.Clone()
	return nil
}

func (t *memTx) UpdateRegistry(ctx context.Context, r *models.Registry) error {
	if _, err := t.Registry(ctx); err != nil {
		return err
	}
	t.registry = r.Clone()
	return nil
}

func (t *memTx) Capsule(ctx context.Context, addr address.Address) (*models.Capsule, error) {
	if c, staged := t.capsules[addr]; staged {
		if c == nil {
			return nil, sentinel.ErrNotFound
		}
		return c.Clone(), nil
	}
	return t.ledger.GetCapsule(ctx, addr)
}

func (t *memTx) InsertCapsule(ctx context.Context, c *models.Capsule) error {
	if _, err := t.Capsule(ctx, c.Address); err == nil {
		return sentinel.ErrAlreadyExists
	}
	t.capsules[c.Address] = c.Clone()
	return nil
}

func (t *memTx) UpdateCapsule(ctx context.Context, c *models.Capsule) error {
	if _, err := t.Capsule(ctx, c.Address); err != nil {
		return err
	}
	t.capsules[c.Address] = c.Clone()
	return nil
}

func (t *memTx) DeleteCapsule(ctx context.Context, addr address.Address) error {
	if _, err := t.Capsule(ctx, addr); err != nil {
		return err
	}
	t.capsules[addr] = nil
	return nil
}

func (t *memTx) Append(_ context.Context, env events.Envelope) error {
	t.events = append(t.events, env)
	return nil
}
