package models

import (
	"time"

	"timevault/internal/capsule/address"
	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
)

// CreateCapsuleRequest holds the author-supplied fields of a new capsule.
type CreateCapsuleRequest struct {
	Title        string
	Content      string
	UnlockDate   time.Time
	EncryptedURL *string
}

// Validate checks title, content, url, the unlock date range and then that
// the date is in the future, returning the first failure.
func (r CreateCapsuleRequest) Validate(limits Limits, now time.Time) error {
	if err := limits.checkTitle(r.Title); err != nil {
		return err
	}
	if err := limits.checkContent(r.Content); err != nil {
		return err
	}
	if r.EncryptedURL != nil {
		if err := limits.checkURL(*r.EncryptedURL); err != nil {
			return err
		}
	}
	if err := checkDateRange(r.UnlockDate); err != nil {
		return err
	}
	if !r.UnlockDate.After(now) {
		return Fail(ErrUnlockDateMustBeFuture, "")
	}
	return nil
}

// UpdateCapsuleRequest carries independent optional changes. They are applied
// in a fixed order: content, unlock date, encrypted url. RemoveEncryptedURL
// wins over EncryptedURL.
type UpdateCapsuleRequest struct {
	Content            *string
	UnlockDate         *time.Time
	EncryptedURL       *string
	RemoveEncryptedURL bool
}

// UpdateResult describes which fields an update touched.
type UpdateResult struct {
	ContentUpdated bool
	URLUpdated     bool
	NewUnlockDate  *time.Time
}

// CapsuleRef is a caller's claim about an existing capsule: the address it
// wants to act on and the (creator, id) pair it says the address derives from.
type CapsuleRef struct {
	Address address.Address
	Creator id.Identity
	ID      uint64
}

// Verify recomputes the address from the claimed creator and id.
func (r CapsuleRef) Verify() error {
	if r.Creator.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "capsule creator is required")
	}
	derived, _ := address.ForCapsule(r.Creator, r.ID)
	if derived != r.Address {
		return Fail(ErrAddressMismatch, "")
	}
	return nil
}
