// Package address derives the deterministic ledger address of a record.
//
// An address is the BLAKE2b-256 digest of a length-prefixed kind tag, the
// creator identity, the little-endian record sequence number and a one-byte
// bump. The same inputs
// always produce the same address, so records are located by recomputation
// instead of lookup tables.
package address

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	id "timevault/pkg/domain"
)

// KindCapsule tags capsule addresses.
const KindCapsule = "capsule"

// Size is the length of an address in bytes.
const Size = blake2b.Size256

// Address is a derived 32-byte ledger key.
type Address [Size]byte

// Derive computes the address for (kind, creator, seq) and the bump that
// produced it. Bumps are tried from 255 downwards and the first digest that is
// usable as a key wins; only the all-zero digest is unusable.
//
// Kinds longer than 255 bytes panic.
func Derive(kind string, creator id.Identity, seq uint64) (Address, uint8) {
	if len(kind) > 255 {
		panic("address: kind tag longer than 255 bytes")
	}
	var seqLE [8]byte
	binary.LittleEndian.PutUint64(seqLE[:], seq)

	for bump := 255; bump >= 0; bump-- {
		h, _ := blake2b.New256(nil)
		h.Write([]byte{byte(len(kind))})
		h.Write([]byte(kind))
		h.Write(creator.Bytes())
		h.Write(seqLE[:])
		h.Write([]byte{byte(bump)})

		var addr Address
		copy(addr[:], h.Sum(nil))
		if !addr.IsZero() {
			return addr, uint8(bump)
		}
	}
	// Unreachable: 256 consecutive all-zero BLAKE2b digests.
	panic("address: no usable bump")
}

// ForCapsule is Derive with KindCapsule.
func ForCapsule(creator id.Identity, seq uint64) (Address, uint8) {
	return Derive(KindCapsule, creator, seq)
}

// Parse decodes a 64-character hex address.
func Parse(s string) (Address, error) {
	var a Address
	if len(s) != hex.EncodedLen(Size) {
		return a, fmt.Errorf("address must be %d hex characters", hex.EncodedLen(Size))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("address is not valid hex: %w", err)
	}
	return a, nil
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
