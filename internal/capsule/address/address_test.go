package address

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	id "timevault/pkg/domain"
)

var creator = id.Identity(uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff"))

func TestDerive_IsPure(t *testing.T) {
	a1, b1 := ForCapsule(creator, 7)
	a2, b2 := ForCapsule(creator, 7)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, uint8(255), b1)
}

func TestDerive_MatchesDigestLayout(t *testing.T) {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], 42)
	input := append([]byte{byte(len(KindCapsule))}, KindCapsule...)
	input = append(input, creator.Bytes()...)
	input = append(input, seq[:]...)
	input = append(input, 255)

	want := blake2b.Sum256(input)
	got, _ := ForCapsule(creator, 42)
	assert.Equal(t, Address(want), got)
}

func TestDerive_KnownVector(t *testing.T) {
	got, bump := ForCapsule(creator, 42)
	assert.Equal(t, "c3678ed7ddc29b3d21385b6ec9466cfa7fc500594396c20924b739687da1ee34", got.String())
	assert.Equal(t, uint8(255), bump)
}

func TestDerive_KindIsLengthPrefixed(t *testing.T) {
	var seq [8]byte
	unprefixed := append([]byte(KindCapsule), creator.Bytes()...)
	unprefixed = append(unprefixed, seq[:]...)
	unprefixed = append(unprefixed, 255)

	got, _ := ForCapsule(creator, 0)
	assert.NotEqual(t, Address(blake2b.Sum256(unprefixed)), got)

	assert.Panics(t, func() { Derive(strings.Repeat("k", 256), creator, 0) })
	assert.NotPanics(t, func() { Derive(strings.Repeat("k", 255), creator, 0) })
}

func TestDerive_DistinctInputs(t *testing.T) {
	base, _ := ForCapsule(creator, 0)
	next, _ := ForCapsule(creator, 1)
	other, _ := ForCapsule(id.NewIdentity(), 0)
	kind, _ := Derive("registry", creator, 0)

	assert.NotEqual(t, base, next)
	assert.NotEqual(t, base, other)
	assert.NotEqual(t, base, kind)
}

func TestParse(t *testing.T) {
	addr, _ := ForCapsule(creator, 3)

	t.Run("round trips through String", func(t *testing.T) {
		parsed, err := Parse(addr.String())
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
	})

	t.Run("accepts uppercase hex", func(t *testing.T) {
		parsed, err := Parse(strings.ToUpper(addr.String()))
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		_, err := Parse(addr.String()[:10])
		assert.Error(t, err)
	})

	t.Run("rejects non hex", func(t *testing.T) {
		_, err := Parse(strings.Repeat("zz", Size))
		assert.Error(t, err)
	})
}

func TestAddress_Text(t *testing.T) {
	addr, _ := ForCapsule(creator, 9)
	text, err := addr.MarshalText()
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, addr, decoded)
	assert.False(t, decoded.IsZero())
}
