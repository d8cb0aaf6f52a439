//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/relay"
	capsulepg "timevault/internal/capsule/store/postgres"
	"timevault/internal/platform/kafka"
	id "timevault/pkg/domain"
	"timevault/pkg/testutil/containers"
)

func TestRelay_PublishesOutboxToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	pg := containers.GetManager().GetPostgres(t)
	rp := containers.GetManager().GetRedpanda(t)
	require.NoError(t, pg.TruncateTables(ctx, capsulepg.Tables...))

	cfg := kafka.Config{Brokers: rp.Brokers, Topic: "capsule-events-it", Partitions: 3, ReplicationFactor: 1}
	producer, err := kafka.NewClient(cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg))
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg), "second bootstrap is a no-op")

	worker := relay.New(capsulepg.NewOutbox(pg.DB), relay.NewKafkaPublisher(producer, cfg.Topic),
		relay.WithPollInterval(time.Hour),
	)
	listener := relay.NewListener(pg.DSN, capsulepg.NotifyChannel, nil)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{}, 2)
	go func() { _ = worker.Run(runCtx); done <- struct{}{} }()
	go func() { _ = listener.Run(runCtx, worker.Notify); done <- struct{}{} }()
	defer func() {
		stop()
		<-done
		<-done
	}()

	// Give LISTEN a moment to register; the poll interval is an hour so the
	// batch below only moves on NOTIFY.
	time.Sleep(500 * time.Millisecond)

	l := capsulepg.New(pg.DB)
	addr, _ := address.ForCapsule(id.NewIdentity(), 0)
	require.NoError(t, l.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		for i := 0; i < 3; i++ {
			env, err := events.Wrap(ctx, addr, events.CapsuleUnlocked{Capsule: addr, Timestamp: int64(i)}, time.Now())
			if err != nil {
				return err
			}
			if err := tx.Append(ctx, env); err != nil {
				return err
			}
		}
		return nil
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []*kgo.Record
	for len(got) < 3 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "timed out waiting for records")
		fetches.EachRecord(func(r *kgo.Record) { got = append(got, r) })
	}

	require.Len(t, got, 3)
	for i, r := range got {
		require.Equal(t, addr.String(), string(r.Key))
		env, err := events.Decode(r.Value)
		require.NoError(t, err)
		require.Equal(t, events.TypeCapsuleUnlocked, env.Type)
		var p events.CapsuleUnlocked
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		require.Equal(t, int64(i), p.Timestamp, "one key, one partition, commit order")
	}

	require.Eventually(t, func() bool {
		n, err := capsulepg.NewOutbox(pg.DB).Pending(ctx)
		return err == nil && n == 0
	}, 10*time.Second, 100*time.Millisecond)
}
