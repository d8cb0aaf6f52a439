// Package domain holds identity primitives shared by every layer.
//
// Identities are parsed once at trust boundaries (HTTP, CLI, tokens) and travel
// as typed values afterwards, so a raw string never reaches the ledger.
package domain

import (
	"github.com/google/uuid"

	dErrors "timevault/pkg/domain-errors"
)

// Identity names a principal able to author, own or close capsules, or a mint
// account associated with a capsule. It is a 16-byte UUID.
type Identity uuid.UUID

// NilIdentity is the zero identity. It is never a valid principal.
var NilIdentity = Identity(uuid.Nil)

// ParseIdentity parses s and rejects empty, malformed and nil UUIDs.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return NilIdentity, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return NilIdentity, dErrors.Wrap(err, dErrors.CodeInvalidInput, "identity must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return NilIdentity, dErrors.New(dErrors.CodeInvalidInput, "identity must not be the nil UUID")
	}
	return Identity(parsed), nil
}

// NewIdentity returns a random identity.
func NewIdentity() Identity {
	return Identity(uuid.New())
}

func (i Identity) String() string {
	return uuid.UUID(i).String()
}

// Bytes returns the 16 raw bytes of the identity.
func (i Identity) Bytes() []byte {
	b := uuid.UUID(i)
	return b[:]
}

// IsNil reports whether i is the zero identity.
func (i Identity) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i Identity) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}

func (i *Identity) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*i = Identity(u)
	return nil
}
