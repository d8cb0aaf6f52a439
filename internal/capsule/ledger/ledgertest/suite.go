// Package ledgertest is the behavioural contract every ledger backend passes.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
	"timevault/pkg/platform/sentinel"
)

// Backend is a freshly emptied ledger plus the hooks the contract needs to
// observe it.
type Backend struct {
	Ledger ledger.Ledger
	Reader ledger.Reader
	// Events returns every committed envelope in commit order.
	Events func(ctx context.Context) ([]events.Envelope, error)
}

// Suite runs the contract against the Backend returned by Factory before each test.
type Suite struct {
	suite.Suite
	Factory func(t *testing.T) Backend

	backend Backend
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.backend = s.Factory(s.T())
}

var t0 = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func (s *Suite) newCapsule(creator id.Identity, seq uint64) *models.Capsule {
	c, err := models.NewCapsule(creator, seq, models.CreateCapsuleRequest{
		Title:      "letter",
		Content:    "hello",
		UnlockDate: t0.Add(time.Hour),
	}, models.DefaultLimits(), t0)
	s.Require().NoError(err)
	return c
}

func (s *Suite) envelope(addr address.Address) events.Envelope {
	env, err := events.Wrap(s.ctx, addr, events.CapsuleClosed{Capsule: addr, Timestamp: t0.Unix()}, t0)
	s.Require().NoError(err)
	return env
}

func (s *Suite) run(keys []string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.backend.Ledger.RunInTx(ledger.WithKeys(s.ctx, keys...), fn)
}

func (s *Suite) TestRegistryLifecycle() {
	_, err := s.backend.Reader.GetRegistry(s.ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	authority := id.NewIdentity()
	reg, err := models.NewRegistry(authority)
	s.Require().NoError(err)

	s.Require().NoError(s.run([]string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.Registry(ctx)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		return tx.InsertRegistry(ctx, reg)
	}))

	err = s.run([]string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertRegistry(ctx, reg)
	})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)

	s.Require().NoError(s.run([]string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
		r, err := tx.Registry(ctx)
		if err != nil {
			return err
		}
		r.ApplyAllocation()
		return tx.UpdateRegistry(ctx, r)
	}))

	got, err := s.backend.Reader.GetRegistry(s.ctx)
	s.Require().NoError(err)
	s.Equal(authority, got.Authority)
	s.Equal(uint64(1), got.TotalCapsules)
	s.Equal(models.RegistryVersion, got.Version)
}

func (s *Suite) TestCapsuleLifecycle() {
	c := s.newCapsule(id.NewIdentity(), 0)
	url := "ipfs://blob"
	c.EncryptedURL = &url
	key := ledger.CapsuleKey(c.Address)

	s.Run("insert then read", func() {
		s.Require().NoError(s.run([]string{key}, func(ctx context.Context, tx ledger.Tx) error {
			return tx.InsertCapsule(ctx, c)
		}))
		got, err := s.backend.Reader.GetCapsule(s.ctx, c.Address)
		s.Require().NoError(err)
		s.Equal(c.Creator, got.Creator)
		s.Equal(c.Title, got.Title)
		s.Require().NotNil(got.EncryptedURL)
		s.Equal(url, *got.EncryptedURL)
		s.True(c.UnlockDate.Equal(got.UnlockDate))
		s.Equal(c.Bump, got.Bump)
	})

	s.Run("duplicate insert is rejected", func() {
		err := s.run([]string{key}, func(ctx context.Context, tx ledger.Tx) error {
			return tx.InsertCapsule(ctx, c)
		})
		s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)
	})

	s.Run("update persists optional fields", func() {
		mint := id.NewIdentity()
		s.Require().NoError(s.run([]string{key}, func(ctx context.Context, tx ledger.Tx) error {
			cur, err := tx.Capsule(ctx, c.Address)
			if err != nil {
				return err
			}
			cur.ApplyUnlock(t0.Add(2 * time.Hour))
			cur.ApplyTransfer(cur.Owner, id.NewIdentity(), &mint, t0.Add(2*time.Hour))
			cur.EncryptedURL = nil
			return tx.UpdateCapsule(ctx, cur)
		}))
		got, err := s.backend.Reader.GetCapsule(s.ctx, c.Address)
		s.Require().NoError(err)
		s.True(got.IsUnlocked)
		s.Nil(got.EncryptedURL)
		s.Require().NotNil(got.Mint)
		s.Equal(mint, *got.Mint)
		s.Require().NotNil(got.TransferredAt)
	})

	s.Run("delete removes the record", func() {
		s.Require().NoError(s.run([]string{key}, func(ctx context.Context, tx ledger.Tx) error {
			return tx.DeleteCapsule(ctx, c.Address)
		}))
		_, err := s.backend.Reader.GetCapsule(s.ctx, c.Address)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		err = s.run([]string{key}, func(ctx context.Context, tx ledger.Tx) error {
			return tx.DeleteCapsule(ctx, c.Address)
		})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestReadYourWrites() {
	c := s.newCapsule(id.NewIdentity(), 0)
	s.Require().NoError(s.run([]string{ledger.CapsuleKey(c.Address)}, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertCapsule(ctx, c); err != nil {
			return err
		}
		got, err := tx.Capsule(ctx, c.Address)
		if err != nil {
			return err
		}
		s.Equal(c.Title, got.Title)
		return nil
	}))
}

func (s *Suite) TestFailedTransactionLeavesNoTrace() {
	c := s.newCapsule(id.NewIdentity(), 0)
	boom := errors.New("validation failed")

	err := s.run([]string{ledger.CapsuleKey(c.Address)}, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertCapsule(ctx, c); err != nil {
			return err
		}
		if err := tx.Append(ctx, s.envelope(c.Address)); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.backend.Reader.GetCapsule(s.ctx, c.Address)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	evs, err := s.backend.Events(s.ctx)
	s.Require().NoError(err)
	s.Empty(evs)
}

func (s *Suite) TestEventsCommitWithWrites() {
	c := s.newCapsule(id.NewIdentity(), 0)
	env := s.envelope(c.Address)

	s.Require().NoError(s.run([]string{ledger.CapsuleKey(c.Address)}, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertCapsule(ctx, c); err != nil {
			return err
		}
		return tx.Append(ctx, env)
	}))

	evs, err := s.backend.Events(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(evs, 1)
	s.Equal(env.ID, evs[0].ID)
	s.Equal(env.Type, evs[0].Type)
	s.Equal(c.Address, evs[0].Address)
	s.JSONEq(string(env.Payload), string(evs[0].Payload))
}

// TestConcurrentCounter checks that read-modify-write on the registry never
// loses an increment. Optimistic backends may give up with ErrConflict; those
// attempts must not count.
func (s *Suite) TestConcurrentCounter() {
	reg, err := models.NewRegistry(id.NewIdentity())
	s.Require().NoError(err)
	s.Require().NoError(s.run([]string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertRegistry(ctx, reg)
	}))

	const goroutines = 20
	var wg sync.WaitGroup
	var committed, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.run([]string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
				r, err := tx.Registry(ctx)
				if err != nil {
					return err
				}
				r.ApplyAllocation()
				return tx.UpdateRegistry(ctx, r)
			})
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(goroutines), committed.Load()+conflicts.Load())
	got, err := s.backend.Reader.GetRegistry(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(committed.Load()), got.TotalCapsules)
}
