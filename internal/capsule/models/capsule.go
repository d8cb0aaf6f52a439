package models

import (
	"time"

	"timevault/internal/capsule/address"
	id "timevault/pkg/domain"
)

// Capsule is a time-locked content record.
//
// Invariants:
//   - Address, Creator, ID and Title never change after creation
//   - UnlockDate is after CreatedAt and only ever moves later
//   - IsUnlocked latches from false to true and never back
//   - Content, UnlockDate and EncryptedURL change only while locked
//   - Owner changes only through a transfer by the current owner
type Capsule struct {
	Address       address.Address `json:"address"`
	Creator       id.Identity     `json:"creator"`
	Owner         id.Identity     `json:"owner"`
	ID            uint64          `json:"id"`
	Title         string          `json:"title"`
	Content       string          `json:"content"`
	EncryptedURL  *string         `json:"encrypted_url,omitempty"`
	UnlockDate    time.Time       `json:"unlock_date"`
	IsUnlocked    bool            `json:"is_unlocked"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	TransferredAt *time.Time      `json:"transferred_at,omitempty"`
	Mint          *id.Identity    `json:"mint,omitempty"`
	MintCreator   *id.Identity    `json:"mint_creator,omitempty"`
	Bump          uint8           `json:"bump"`
}

// NewCapsule validates req and builds the capsule stored at the address
// derived from (creator, seq). The caller is both creator and owner.
func NewCapsule(creator id.Identity, seq uint64, req CreateCapsuleRequest, limits Limits, now time.Time) (*Capsule, error) {
	if err := req.Validate(limits, now); err != nil {
		return nil, err
	}
	addr, bump := address.ForCapsule(creator, seq)
	return &Capsule{
		Address:      addr,
		Creator:      creator,
		Owner:        creator,
		ID:           seq,
		Title:        req.Title,
		Content:      req.Content,
		EncryptedURL: cloneString(req.EncryptedURL),
		UnlockDate:   req.UnlockDate,
		CreatedAt:    now,
		UpdatedAt:    now,
		Bump:         bump,
	}, nil
}

func (c *Capsule) IsOwnedBy(identity id.Identity) bool {
	return !identity.IsNil() && c.Owner == identity
}

// IsReadyToUnlock reports whether the unlock date has been reached.
func (c *Capsule) IsReadyToUnlock(now time.Time) bool {
	return !now.Before(c.UnlockDate)
}

// Matches reports whether the stored record is the one ref claims.
func (c *Capsule) Matches(ref CapsuleRef) error {
	if c.Address != ref.Address || c.Creator != ref.Creator || c.ID != ref.ID {
		return Fail(ErrAddressMismatch, "")
	}
	return nil
}

func (c *Capsule) requireOwner(caller id.Identity) error {
	if !c.IsOwnedBy(caller) {
		return Fail(ErrUnauthorizedAccess, "")
	}
	return nil
}

// CanUpdate checks ownership, the lock state and every requested field
// before anything is modified.
func (c *Capsule) CanUpdate(caller id.Identity, req UpdateCapsuleRequest, limits Limits) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if c.IsUnlocked {
		return Fail(ErrCapsuleAlreadyUnlocked, "capsule content cannot change after unlock")
	}
	if req.Content != nil {
		if err := limits.checkContent(*req.Content); err != nil {
			return err
		}
	}
	if req.UnlockDate != nil {
		if err := checkDateRange(*req.UnlockDate); err != nil {
			return err
		}
	}
	if req.UnlockDate != nil && !req.UnlockDate.After(c.UnlockDate) {
		return Fail(ErrInvalidUnlockDateExtension, "new unlock date must be later than the current one")
	}
	if !req.RemoveEncryptedURL && req.EncryptedURL != nil {
		if err := limits.checkURL(*req.EncryptedURL); err != nil {
			return err
		}
	}
	return nil
}

// ApplyUpdate applies req in field order. UpdatedAt moves even when req is empty.
// Call CanUpdate first.
func (c *Capsule) ApplyUpdate(req UpdateCapsuleRequest, now time.Time) UpdateResult {
	var res UpdateResult
	if req.Content != nil {
		c.Content = *req.Content
		res.ContentUpdated = true
	}
	if req.UnlockDate != nil {
		c.UnlockDate = *req.UnlockDate
		d := *req.UnlockDate
		res.NewUnlockDate = &d
	}
	switch {
	case req.RemoveEncryptedURL:
		c.EncryptedURL = nil
		res.URLUpdated = true
	case req.EncryptedURL != nil:
		c.EncryptedURL = cloneString(req.EncryptedURL)
		res.URLUpdated = true
	}
	c.UpdatedAt = now
	return res
}

// CanUnlock checks ownership and readiness. An already unlocked capsule passes;
// the caller treats that as a no-op.
func (c *Capsule) CanUnlock(caller id.Identity, now time.Time) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if !c.IsUnlocked && !c.IsReadyToUnlock(now) {
		return Fail(ErrCapsuleNotReadyToUnlock, "")
	}
	return nil
}

func (c *Capsule) ApplyUnlock(now time.Time) {
	c.IsUnlocked = true
	c.UpdatedAt = now
}

// CanTransfer checks ownership and that the new owner differs from the current one.
// Transfers are allowed in both lock states.
func (c *Capsule) CanTransfer(caller, newOwner id.Identity) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == c.Owner {
		return Fail(ErrCannotTransferToSelf, "")
	}
	return nil
}

// ApplyTransfer moves ownership. A non-nil mint overwrites any existing mint
// association and records caller as its creator.
func (c *Capsule) ApplyTransfer(caller, newOwner id.Identity, mint *id.Identity, now time.Time) {
	if mint != nil {
		c.Mint = cloneIdentity(mint)
		c.MintCreator = cloneIdentity(&caller)
	}
	c.Owner = newOwner
	t := now
	c.TransferredAt = &t
	c.UpdatedAt = now
}

// CanClose checks ownership and that the capsule has been unlocked.
func (c *Capsule) CanClose(caller id.Identity) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if !c.IsUnlocked {
		return Fail(ErrCannotCloseLockedCapsule, "")
	}
	return nil
}

// CanAttachMint checks ownership, the mint identity and that no mint is attached yet.
func (c *Capsule) CanAttachMint(caller, mint id.Identity) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if mint.IsNil() {
		return Fail(ErrInvalidTokenAccount, "mint identity is required")
	}
	if c.Mint != nil {
		return Fail(ErrCapsuleAlreadyHasMint, "")
	}
	return nil
}

func (c *Capsule) ApplyMint(caller, mint id.Identity, now time.Time) {
	c.Mint = cloneIdentity(&mint)
	c.MintCreator = cloneIdentity(&caller)
	c.UpdatedAt = now
}

// Clone returns a deep copy.
func (c *Capsule) Clone() *Capsule {
	if c == nil {
		return nil
	}
	cp := *c
	cp.EncryptedURL = cloneString(c.EncryptedURL)
	cp.Mint = cloneIdentity(c.Mint)
	cp.MintCreator = cloneIdentity(c.MintCreator)
	if c.TransferredAt != nil {
		t := *c.TransferredAt
		cp.TransferredAt = &t
	}
	return &cp
}

// Ref returns the claim that identifies c.
func (c *Capsule) Ref() CapsuleRef {
	return CapsuleRef{Address: c.Address, Creator: c.Creator, ID: c.ID}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneIdentity(i *id.Identity) *id.Identity {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
