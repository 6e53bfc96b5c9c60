package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewJWTManager("s3cret")

	token, err := m.GenerateToken("staff-42")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-42", claims.StaffID)
	assert.Equal(t, "tea-assistant", claims.Issuer)

	claims, err = m.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "staff-42", claims.StaffID)
}

func TestValidateTokenRejects(t *testing.T) {
	m := NewJWTManager("s3cret")
	token, err := m.GenerateToken("staff-42")
	require.NoError(t, err)

	_, err = NewJWTManager("other").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{StaffID: "staff-42"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	signer := NewJWTManager("s3cret", WithTTL(time.Hour), WithClock(func() time.Time { return issued }))
	token, err := signer.GenerateToken("staff-42")
	require.NoError(t, err)

	later := NewJWTManager("s3cret", WithClock(func() time.Time { return issued.Add(2 * time.Hour) }))
	_, err = later.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestMissingSecret(t *testing.T) {
	m := NewJWTManager("")
	assert.False(t, m.Enabled())

	_, err := m.GenerateToken("staff-42")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = m.ValidateToken("x")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewJWTManager("k").GenerateToken(" ")
	assert.Error(t, err)
}
