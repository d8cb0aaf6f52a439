//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/ledger/ledgertest"
	"timevault/internal/capsule/models"
	capsulepg "timevault/internal/capsule/store/postgres"
	id "timevault/pkg/domain"
	"timevault/pkg/testutil/containers"
)

func TestPostgresLedgerContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	suite.Run(t, &ledgertest.Suite{
		Factory: func(t *testing.T) ledgertest.Backend {
			require.NoError(t, pg.TruncateTables(context.Background(), capsulepg.Tables...))
			l := capsulepg.New(pg.DB)
			outbox := capsulepg.NewOutbox(pg.DB)
			return ledgertest.Backend{Ledger: l, Reader: l, Events: outbox.Envelopes}
		},
	})
}

type OutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ledger   *capsulepg.Ledger
	outbox   *capsulepg.Outbox
}

func TestOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.ledger = capsulepg.New(s.postgres.DB)
	s.outbox = capsulepg.NewOutbox(s.postgres.DB)
}

func (s *OutboxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), capsulepg.Tables...))
}

func (s *OutboxSuite) appendEvents(n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		c, err := models.NewCapsule(id.NewIdentity(), 0, models.CreateCapsuleRequest{
			Title:      "t",
			UnlockDate: time.Now().Add(time.Hour),
		}, models.DefaultLimits(), time.Now())
		s.Require().NoError(err)
		env, err := events.Wrap(ctx, c.Address, events.CapsuleCreated{Capsule: c.Address, Creator: c.Creator}, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(s.ledger.RunInTx(ledger.WithKeys(ctx, ledger.CapsuleKey(c.Address)), func(ctx context.Context, tx ledger.Tx) error {
			return tx.Append(ctx, env)
		}))
	}
}

func (s *OutboxSuite) TestDrainPublishesInOrderAndRetires() {
	ctx := context.Background()
	s.appendEvents(5)

	var seen []int64
	n, err := s.outbox.Drain(ctx, 3, func(_ context.Context, entries []events.OutboxEntry) error {
		for _, e := range entries {
			seen = append(seen, e.Seq)
		}
		return nil
	})
	s.Require().NoError(err)
	s.Equal(3, n)
	s.IsIncreasing(seen)

	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(2, pending)
}

func (s *OutboxSuite) TestDrainKeepsRowsWhenPublishFails() {
	ctx := context.Background()
	s.appendEvents(2)

	_, err := s.outbox.Drain(ctx, 10, func(context.Context, []events.OutboxEntry) error {
		return context.DeadlineExceeded
	})
	s.Require().ErrorIs(err, context.DeadlineExceeded)

	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(2, pending)
}

// TestConcurrentDrainsNeverShareRows verifies SKIP LOCKED keeps relays apart.
func (s *OutboxSuite) TestConcurrentDrainsNeverShareRows() {
	ctx := context.Background()
	s.appendEvents(20)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		published = map[int64]int{}
		total     atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, err := s.outbox.Drain(ctx, 3, func(_ context.Context, entries []events.OutboxEntry) error {
					mu.Lock()
					defer mu.Unlock()
					for _, e := range entries {
						published[e.Seq]++
					}
					return nil
				})
				if err != nil || n == 0 {
					return
				}
				total.Add(int32(n))
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(20), total.Load())
	for seq, count := range published {
		s.Equal(1, count, "row %d published more than once", seq)
	}
}

func (s *OutboxSuite) TestMigrateIsIdempotent() {
	ctx := context.Background()
	s.appendEvents(1)

	s.Require().NoError(capsulepg.Migrate(ctx, s.postgres.DB))

	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(1, pending, "re-running the schema must not drop data")
}
