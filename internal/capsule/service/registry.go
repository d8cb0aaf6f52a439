package service

import (
	"context"
	"errors"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/events"
	"timevault/internal/capsule/ledger"
	"timevault/internal/capsule/models"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/sentinel"
)

// InitializeRegistry creates the registry with the caller as authority.
func (s *Service) InitializeRegistry(ctx context.Context) (*models.Registry, error) {
	authority, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	at := now(ctx)

	reg, err := models.NewRegistry(authority)
	if err != nil {
		return nil, err
	}
	err = s.run(ctx, "initialize_registry", []string{ledger.RegistryKey}, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.InsertRegistry(ctx, reg); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return models.Fail(models.ErrRegistryAlreadyInitialized, "")
			}
			return storeErr(err, "create registry")
		}
		return appendEvent(ctx, tx, address.Address{}, events.RegistryInitialized{
			Authority: authority,
			Version:   reg.Version,
			Timestamp: events.Unix(at),
		}, at)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SetRegistryTotal(reg.TotalCapsules)
	s.logAudit(ctx, events.TypeRegistryInitialized, "authority", authority.String())
	return reg, nil
}

// GetRegistry returns the committed registry.
func (s *Service) GetRegistry(ctx context.Context) (*models.Registry, error) {
	reg, err := s.reader.GetRegistry(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, models.Fail(models.ErrRegistryNotInitialized, "")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry")
	}
	return reg, nil
}
