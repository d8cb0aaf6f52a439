package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var identity = id.NewIdentity()
var expiresIn = time.Hour

func Test_GenerateToken(t *testing.T) {
	token, err := jwtService.GenerateToken(identity, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity.String(), claims.Subject)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateIdentity(t *testing.T) {
	token, err := jwtService.GenerateToken(identity, expiresIn)
	require.NoError(t, err)

	got, err := jwtService.ValidateIdentity(token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", dErrors.Message(err))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateToken(identity, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token has expired", dErrors.Message(err))
}

func Test_ValidateToken_RejectsForeignIssuerAndAudience(t *testing.T) {
	tests := []struct {
		name   string
		signer *JWTService
	}{
		{"wrong issuer", NewJWTService("test-signing-key", "someone-else", "test-audience")},
		{"wrong audience", NewJWTService("test-signing-key", "test-issuer", "other-audience")},
		{"wrong key", NewJWTService("another-key", "test-issuer", "test-audience")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tt.signer.GenerateToken(identity, expiresIn)
			require.NoError(t, err)

			_, err = jwtService.ValidateToken(token)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.String(),
			Issuer:   "test-issuer",
			Audience: []string{"test-audience"},
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateIdentity_RejectsBadSubject(t *testing.T) {
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := signed.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateIdentity(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
