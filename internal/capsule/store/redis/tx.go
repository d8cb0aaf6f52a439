package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	"timevault/pkg/platform/sentinel"
)

// redisTx buffers writes until EXEC. staged maps a key to its pending JSON
// value; a nil value is a pending delete.
type redisTx struct {
	ledger  *Ledger
	rtx     *redis.Tx
	watched map[string]struct{}
	staged  map[string][]byte
	order   []string
	events  []pendingEvent
}

type pendingEvent struct {
	env  events.Envelope
	body []byte
}

func newRedisTx(l *Ledger, rtx *redis.Tx, watched []string) *redisTx {
	t := &redisTx{
		ledger:  l,
		rtx:     rtx,
		watched: make(map[string]struct{}, len(watched)),
		staged:  make(map[string][]byte),
	}
	for _, k := range watched {
		t.watched[k] = struct{}{}
	}
	return t
}

// read returns the current value of key, watching it first so a concurrent
// change aborts EXEC.
func (t *redisTx) read(ctx context.Context, key string, dst any) error {
	if v, ok := t.staged[key]; ok {
		if v == nil {
			return sentinel.ErrNotFound
		}
		return json.Unmarshal(v, dst)
	}
	if _, ok := t.watched[key]; !ok {
		if err := t.rtx.Watch(ctx, key).Err(); err != nil {
			return fmt.Errorf("watch %s: %w", key, err)
		}
		t.watched[key] = struct{}{}
	}
	return t.ledger.getJSON(ctx, t.rtx, key, dst)
}

func (t *redisTx) exists(ctx context.Context, key string) (bool, error) {
	var raw json.RawMessage
	err := t.read(ctx, key, &raw)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (t *redisTx) stage(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, ok := t.staged[key]; !ok {
		t.order = append(t.order, key)
	}
	t.staged[key] = data
	return nil
}

func (t *redisTx) Registry(ctx context.Context) (*models.Registry, error) {
	var r models.Registry
	if err := t.read(ctx, t.ledger.key(ledger.RegistryKey), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *redisTx) InsertRegistry(ctx context.Context, r *models.Registry) error {
	key := t.ledger.key(ledger.RegistryKey)
	ok, err := t.exists(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return sentinel.ErrAlreadyExists
	}
	return t.stage(key, r)
}

func (t *redisTx) UpdateRegistry(ctx context.Context, r *models.Registry) error {
	key := t.ledger.key(ledger.RegistryKey)
	ok, err := t.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return t.stage(key, r)
}

func (t *redisTx) Capsule(ctx context.Context, addr address.Address) (*models.Capsule, error) {
	var c models.Capsule
	if err := t.read(ctx, t.ledger.key(ledger.CapsuleKey(addr)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *redisTx) InsertCapsule(ctx context.Context, c *models.Capsule) error {
	key := t.ledger.key(ledger.CapsuleKey(c.Address))
	ok, err := t.exists(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return sentinel.ErrAlreadyExists
	}
	return t.stage(key, c)
}

func (t *redisTx) UpdateCapsule(ctx context.Context, c *models.Capsule) error {
	key := t.ledger.key(ledger.CapsuleKey(c.Address))
	ok, err := t.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return t.stage(key, c)
}

func (t *redisTx) DeleteCapsule(ctx context.Context, addr address.Address) error {
	key := t.ledger.key(ledger.CapsuleKey(addr))
	ok, err := t.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, seen := t.staged[key]; !seen {
		t.order = append(t.order, key)
	}
	t.staged[key] = nil
	return nil
}

func (t *redisTx) Append(_ context.Context, env events.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode event %s: %w", env.Type, err)
	}
	t.events = append(t.events, pendingEvent{env: env, body: body})
	return nil
}

// flush queues buffered writes on the MULTI pipeline.
func (t *redisTx) flush(ctx context.Context, pipe redis.Pipeliner) {
	for _, key := range t.order {
		if v := t.staged[key]; v != nil {
			pipe.Set(ctx, key, v, 0)
		} else {
			pipe.Del(ctx, key)
		}
	}
	for _, ev := range t.events {
		env := ev.env
		args := &redis.XAddArgs{
			Stream: t.ledger.StreamKey(),
			Values: map[string]any{
				"id":       env.ID.String(),
				"type":     string(env.Type),
				"key":      env.Key(),
				"envelope": string(ev.body),
			},
		}
		if t.ledger.streamMaxLen > 0 {
			args.MaxLen = t.ledger.streamMaxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
}
