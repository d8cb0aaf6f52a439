package models

import (
	dErrors "timevault/pkg/domain-errors"
)

// Kind identifies a capsule failure. Kinds are matched with errors.Is and
// carry a stable snake_case reason that the HTTP layer exposes to clients.
type Kind struct {
	reason  string
	message string
	code    dErrors.Code
}

func (k *Kind) Error() string  { return k.message }
func (k *Kind) Reason() string { return k.reason }

// Code is the transport-neutral category of the kind.
func (k *Kind) Code() dErrors.Code { return k.code }

func newKind(reason, message string, code dErrors.Code) *Kind {
	return &Kind{reason: reason, message: message, code: code}
}

// Input bounds.
var (
	ErrTitleTooLong   = newKind("title_too_long", "title is too long", dErrors.CodeValidation)
	ErrContentTooLong = newKind("content_too_long", "content is too long", dErrors.CodeValidation)
	ErrURLTooLong     = newKind("url_too_long", "encrypted url is too long", dErrors.CodeValidation)
)

// Temporal rules.
var (
	ErrUnlockDateMustBeFuture     = newKind("unlock_date_must_be_future", "unlock date must be in the future", dErrors.CodeValidation)
	ErrInvalidUnlockDateExtension = newKind("invalid_unlock_date_extension", "unlock date can only be extended", dErrors.CodeValidation)
	ErrCapsuleNotReadyToUnlock    = newKind("capsule_not_ready_to_unlock", "capsule is not ready to unlock", dErrors.CodeInvalidState)
	ErrUnlockDateOutOfRange       = newKind("unlock_date_out_of_range", "unlock date is outside the supported range", dErrors.CodeValidation)
)

// State machine.
var (
	ErrCapsuleAlreadyUnlocked   = newKind("capsule_already_unlocked", "capsule is already unlocked", dErrors.CodeInvalidState)
	ErrCannotCloseLockedCapsule = newKind("cannot_close_locked_capsule", "capsule must be unlocked before closing", dErrors.CodeInvalidState)
)

// Authorization.
var (
	ErrUnauthorizedAccess   = newKind("unauthorized_access", "caller is not the capsule owner", dErrors.CodeForbidden)
	ErrCannotTransferToSelf = newKind("cannot_transfer_to_self", "capsule cannot be transferred to its current owner", dErrors.CodeValidation)
)

// Mint association.
var (
	ErrCapsuleAlreadyHasMint = newKind("capsule_already_has_mint", "capsule already has a mint", dErrors.CodeConflict)
	ErrInvalidTokenAccount   = newKind("invalid_token_account", "mint account is invalid", dErrors.CodeValidation)
)

// Addressing and lookup.
var (
	ErrAddressMismatch            = newKind("address_mismatch", "address does not match creator and id", dErrors.CodeBadRequest)
	ErrCapsuleNotFound            = newKind("capsule_not_found", "capsule not found", dErrors.CodeNotFound)
	ErrRegistryNotInitialized     = newKind("registry_not_initialized", "registry is not initialized", dErrors.CodeInvalidState)
	ErrRegistryAlreadyInitialized = newKind("registry_already_initialized", "registry is already initialized", dErrors.CodeConflict)
	ErrRegistryCounterOverflow    = newKind("registry_counter_overflow", "registry counter overflow", dErrors.CodeInternal)
)

// Fail wraps kind in a categorized error. msg is the client-facing
// description; an empty msg reuses the kind's own message.
func Fail(kind *Kind, msg string) error {
	if msg == "" {
		msg = kind.message
	}
	return dErrors.Wrap(kind, kind.code, msg)
}
