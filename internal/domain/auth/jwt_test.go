package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	userID := uuid.New()

	token, exp, err := svc.GenerateAccessToken(userID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), user.UserID)
	assert.NotEmpty(t, user.SessionID)
}

func TestJWT_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	other := NewJWTService(DefaultJWTConfig("other"))

	foreign, _, err := other.GenerateAccessToken(uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTService(DefaultJWTConfig("secret"))
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.GenerateAccessToken(uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = svc.GenerateAccessToken(uuid.Nil)
	assert.Error(t, err)
}

func TestJWT_RejectsBadUserID(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "okrtrack",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		UserID: "admin",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
