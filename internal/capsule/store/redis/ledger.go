// Package redis stores the capsule ledger in Redis.
//
// RunInTx is an optimistic transaction: every key the operation reads is
// WATCHed, writes are buffered and flushed in one MULTI/EXEC together with an
// XADD of the operation's events. If a watched key changes before EXEC the
// whole operation is re-run from scratch, up to a bounded number of attempts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/sentinel"
)

const (
	defaultPrefix     = "timevault:"
	defaultMaxRetries = 8
	defaultTxTimeout  = 5 * time.Second
)

// Ledger implements ledger.Ledger and ledger.Reader.
type Ledger struct {
	client       redis.UniversalClient
	prefix       string
	maxRetries   int
	streamMaxLen int64
	timeout      time.Duration
}

type Option func(*Ledger)

// WithPrefix namespaces every key. Default "timevault:".
func WithPrefix(prefix string) Option {
	return func(l *Ledger) {
		l.prefix = prefix
	}
}

// WithMaxRetries bounds optimistic retries before giving up with sentinel.ErrConflict.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxRetries = n
		}
	}
}

// WithStreamMaxLen approximately caps the event stream. Zero keeps everything.
func WithStreamMaxLen(n int64) Option {
	return func(l *Ledger) {
		l.streamMaxLen = n
	}
}

func New(client redis.UniversalClient, opts ...Option) *Ledger {
	l := &Ledger{
		client:     client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
		timeout:    defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StreamKey is the Redis stream that receives event envelopes.
func (l *Ledger) StreamKey() string {
	return l.prefix + "events"
}

func (l *Ledger) key(ledgerKey string) string {
	return l.prefix + ledgerKey
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

	declared := ledger.Keys(ctx)
	watch := make([]string, len(declared))
	for i, k := range declared {
		watch[i] = l.key(k)
	}

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		err := l.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := newRedisTx(l, rtx, watch)
			if err := fn(ctx, t); err != nil {
				return err
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				t.flush(ctx, pipe)
				return nil
			})
			return err
		}, watch...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis ledger: %d optimistic attempts lost: %w", l.maxRetries, sentinel.ErrConflict)
}

// GetRegistry reads the registry outside any transaction.
func (l *Ledger) GetRegistry(ctx context.Context) (*models.Registry, error) {
	var r models.Registry
	if err := l.getJSON(ctx, l.client, l.key(ledger.RegistryKey), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetCapsule reads a capsule outside any transaction.
func (l *Ledger) GetCapsule(ctx context.Context, addr address.Address) (*models.Capsule, error) {
	var c models.Capsule
	if err := l.getJSON(ctx, l.client, l.key(ledger.CapsuleKey(addr)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Envelopes returns every event in the stream in append order.
func (l *Ledger) Envelopes(ctx context.Context) ([]events.Envelope, error) {
	msgs, err := l.client.XRange(ctx, l.StreamKey(), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	out := make([]events.Envelope, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["envelope"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no envelope", m.ID)
		}
		env, err := events.Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (l *Ledger) getJSON(ctx context.Context, g getter, key string, dst any) error {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
