package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/isdelr/warbler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	token, err := m.GenerateJWT(models.User{ID: 7, Username: "wren"})
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "wren", claims.Username)
	assert.Equal(t, "7", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	other := NewTokenManager("other-secret", time.Hour)
	token, err := other.GenerateJWT(models.User{ID: 7, Username: "wren"})
	require.NoError(t, err)
	_, err = m.ValidateJWT(token)
	assert.Error(t, err, "wrong signing key")

	expired := NewTokenManager("test-secret", -time.Minute)
	token, err = expired.GenerateJWT(models.User{ID: 7, Username: "wren"})
	require.NoError(t, err)
	_, err = m.ValidateJWT(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = m.ValidateJWT("not-a-token")
	assert.Error(t, err)
}

func TestValidateJWTRejectsOtherAlgorithms(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	claims := &Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.ValidateJWT(token)
	assert.Error(t, err)
}
