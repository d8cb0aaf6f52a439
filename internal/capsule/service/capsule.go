package service

import (
	"context"
	"errors"
	"strconv"

	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/sentinel"
)

// CreateCapsule allocates the next registry id to a new capsule owned by the caller.
func (s *Service) CreateCapsule(ctx context.Context, req models.CreateCapsuleRequest) (*models.Capsule, error) {
	creator, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	at := now(ctx)
	req.UnlockDate = truncate(req.UnlockDate)

	var (
		created *models.Capsule
		total   uint64
	)
	err = s.run(ctx, "create", []string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
		reg, err := tx.Registry(ctx)
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Fail(models.ErrRegistryNotInitialized, "")
		}
		if err != nil {
			return storeErr(err, "load registry")
		}
		if err := reg.CanAllocate(); err != nil {
			return err
		}

		c, err := models.NewCapsule(creator, reg.NextID(), req, s.limits, at)
		if err != nil {
			return err
		}
		spanAddress(ctx, c.Ref())
		if err := tx.InsertCapsule(ctx, c); err != nil {
			return storeErr(err, "store capsule")
		}
		reg.ApplyAllocation()
		if err := tx.UpdateRegistry(ctx, reg); err != nil {
			return storeErr(err, "advance registry")
		}
		if err := appendEvent(ctx, tx, c.Address, events.CapsuleCreated{
			Capsule:    c.Address,
			Creator:    creator,
			Title:      c.Title,
			UnlockDate: events.Unix(c.UnlockDate),
			Timestamp:  events.Unix(at),
		}, at); err != nil {
			return err
		}
		created, total = c, reg.TotalCapsules
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SetRegistryTotal(total)
	s.logAudit(ctx, events.TypeCapsuleCreated,
		"address", created.Address.String(),
		"creator", creator.String(),
		"capsule_id", strconv.FormatUint(created.ID, 10),
	)
	return created, nil
}

// UpdateCapsule applies req to a locked capsule owned by the caller.
func (s *Service) UpdateCapsule(ctx context.Context, ref models.CapsuleRef, req models.UpdateCapsuleRequest) (*models.Capsule, error) {
	updater, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	at := now(ctx)
	if req.UnlockDate != nil {
		d := truncate(*req.UnlockDate)
		req.UnlockDate = &d
	}

	var updated *models.Capsule
	err = s.mutate(ctx, "update", ref, func(ctx context.Context, tx ledger.Tx, c *models.Capsule) error {
		if err := c.CanUpdate(updater, req, s.limits); err != nil {
			return err
		}
		res := c.ApplyUpdate(req, at)
		if err := tx.UpdateCapsule(ctx, c); err != nil {
			return storeErr(err, "store capsule")
		}
		ev := events.CapsuleUpdated{
			Capsule:        c.Address,
			Updater:        updater,
			ContentUpdated: res.ContentUpdated,
			URLUpdated:     res.URLUpdated,
			Timestamp:      events.Unix(at),
		}
		if res.NewUnlockDate != nil {
			d := events.Unix(*res.NewUnlockDate)
			ev.NewUnlockDate = &d
		}
		if err := appendEvent(ctx, tx, c.Address, ev, at); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, events.TypeCapsuleUpdated, "address", ref.Address.String(), "updater", updater.String())
	return updated, nil
}

// UnlockCapsule opens a capsule whose unlock date has passed. Unlocking an
// unlocked capsule succeeds without writing anything.
func (s *Service) UnlockCapsule(ctx context.Context, ref models.CapsuleRef) (*models.Capsule, error) {
	unlocker, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	at := now(ctx)

	var (
		unlocked *models.Capsule
		noop     bool
	)
	err = s.mutate(ctx, "unlock", ref, func(ctx context.Context, tx ledger.Tx, c *models.Capsule) error {
		if err := c.CanUnlock(unlocker, at); err != nil {
			return err
		}
		unlocked, noop = c, c.IsUnlocked
		if noop {
			return nil
		}
		c.ApplyUnlock(at)
		if err := tx.UpdateCapsule(ctx, c); err != nil {
			return storeErr(err, "store capsule")
		}
		return appendEvent(ctx, tx, c.Address, events.CapsuleUnlocked{
			Capsule:   c.Address,
			Unlocker:  unlocker,
			Timestamp: events.Unix(at),
		}, at)
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		s.logAudit(ctx, events.TypeCapsuleUnlocked, "address", ref.Address.String(), "unlocker", unlocker.String())
	}
	return unlocked, nil
}

// TransferCapsule hands ownership to newOwner, optionally recording a mint
// association on the way.
func (s *Service) TransferCapsule(ctx context.Context, ref models.CapsuleRef, newOwner id.Identity, mint *id.Identity) (*models.Capsule, error) {
	from, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if newOwner.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "new owner is required")
	}
	if mint != nil && mint.IsNil() {
		return nil, models.Fail(models.ErrInvalidTokenAccount, "mint identity is required")
	}
	at := now(ctx)

	var transferred *models.Capsule
	err = s.mutate(ctx, "transfer", ref, func(ctx context.Context, tx ledger.Tx, c *models.Capsule) error {
		if err := c.CanTransfer(from, newOwner); err != nil {
			return err
		}
		c.ApplyTransfer(from, newOwner, mint, at)
		if err := tx.UpdateCapsule(ctx, c); err != nil {
			return storeErr(err, "store capsule")
		}
		if err := appendEvent(ctx, tx, c.Address, events.CapsuleTransferred{
			Capsule:   c.Address,
			From:      from,
			To:        newOwner,
			Mint:      mint,
			Timestamp: events.Unix(at),
		}, at); err != nil {
			return err
		}
		transferred = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, events.TypeCapsuleTransferred,
		"address", ref.Address.String(),
		"from", from.String(),
		"to", newOwner.String(),
	)
	return transferred, nil
}

// CloseCapsule deletes an unlocked capsule owned by the caller.
func (s *Service) CloseCapsule(ctx context.Context, ref models.CapsuleRef) error {
	closer, err := caller(ctx)
	if err != nil {
		return err
	}
	at := now(ctx)

	err = s.mutate(ctx, "close", ref, func(ctx context.Context, tx ledger.Tx, c *models.Capsule) error {
		if err := c.CanClose(closer); err != nil {
			return err
		}
		if err := tx.DeleteCapsule(ctx, c.Address); err != nil {
			return storeErr(err, "delete capsule")
		}
		return appendEvent(ctx, tx, c.Address, events.CapsuleClosed{
			Capsule:   c.Address,
			Closer:    closer,
			Timestamp: events.Unix(at),
		}, at)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, events.TypeCapsuleClosed, "address", ref.Address.String(), "closer", closer.String())
	return nil
}

// AttachMint records the token mint minted for a capsule. Only one mint may
// be attached this way.
func (s *Service) AttachMint(ctx context.Context, ref models.CapsuleRef, mint id.Identity) (*models.Capsule, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	at := now(ctx)

	var attached *models.Capsule
	err = s.mutate(ctx, "attach_mint", ref, func(ctx context.Context, tx ledger.Tx, c *models.Capsule) error {
		if err := c.CanAttachMint(owner, mint); err != nil {
			return err
		}
		c.ApplyMint(owner, mint, at)
		if err := tx.UpdateCapsule(ctx, c); err != nil {
			return storeErr(err, "store capsule")
		}
		if err := appendEvent(ctx, tx, c.Address, events.CapsuleMintAttached{
			Capsule:   c.Address,
			Mint:      mint,
			Creator:   owner,
			Timestamp: events.Unix(at),
		}, at); err != nil {
			return err
		}
		attached = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, events.TypeCapsuleMintAttached, "address", ref.Address.String(), "mint", mint.String())
	return attached, nil
}

// GetCapsule reads a committed capsule. Capsule records are public; only the
// address claim is checked.
func (s *Service) GetCapsule(ctx context.Context, ref models.CapsuleRef) (*models.Capsule, error) {
	if err := ref.Verify(); err != nil {
		return nil, err
	}
	c, err := s.reader.GetCapsule(ctx, ref.Address)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, models.Fail(models.ErrCapsuleNotFound, "")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load capsule")
	}
	return c, nil
}

// mutate runs fn against the capsule ref names, inside a transaction keyed
// on that capsule.
func (s *Service) mutate(ctx context.Context, op string, ref models.CapsuleRef, fn func(ctx context.Context, tx ledger.Tx, c *models.Capsule) error) error {
	return s.run(ctx, op, []string{ledger.CapsuleKey(ref.Address)}, func(ctx context.Context, tx ledger.Tx) error {
		spanAddress(ctx, ref)
		c, err := loadCapsule(ctx, tx, ref)
		if err != nil {
			return err
		}
		return fn(ctx, tx, c)
	})
}
