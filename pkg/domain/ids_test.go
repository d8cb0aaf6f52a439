package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "timevault/pkg/domain-errors"
)

func TestParseIdentity(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseIdentity("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseIdentity(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		got, err := ParseIdentity(raw.String())
		require.NoError(t, err)
		assert.Equal(t, Identity(raw), got)
		assert.Equal(t, raw[:], got.Bytes())
	})
}

// Identities arrive from query strings, JSON bodies and token subjects.
func TestParseIdentity_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE capsules;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIdentity_JSON(t *testing.T) {
	type wrapper struct {
		Owner Identity  `json:"owner"`
		Mint  *Identity `json:"mint,omitempty"`
	}
	owner := NewIdentity()

	data, err := json.Marshal(wrapper{Owner: owner})
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"`+owner.String()+`"}`, string(data))

	var decoded wrapper
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, owner, decoded.Owner)
	assert.Nil(t, decoded.Mint)
}

func TestIdentity_IsNil(t *testing.T) {
	assert.True(t, NilIdentity.IsNil())
	assert.True(t, Identity{}.IsNil())
	assert.False(t, NewIdentity().IsNil())
}
