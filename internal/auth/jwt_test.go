// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

func newTestManager(t *testing.T, ttl time.Duration) *JWTManager {
	t.Helper()

	dir := t.TempDir()
	priv := filepath.Join(dir, "private.pem")
	require.NoError(t, GenerateKeyPair(priv, filepath.Join(dir, "public.pem")))

	m, err := NewJWTManager(config.JWTConfig{
		PrivateKeyPath:    priv,
		AccessTokenExpire: ttl,
		Issuer:            "eternal-vault",
		Audience:          "eternal-vault-api",
	})
	require.NoError(t, err)
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, expiresAt, err := m.CreateAccessToken(AccessTokenClaims{
		UserID:      "6f1c",
		Role:        "user",
		Username:    "alice",
		CoinBalance: 80,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "6f1c", claims.UserID)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, 80, claims.CoinBalance)
	assert.NotEmpty(t, m.GetKeyID())
}

func TestKeyIDStableForSameKeyFile(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "private.pem")
	require.NoError(t, GenerateKeyPair(priv, filepath.Join(dir, "public.pem")))

	cfg := config.JWTConfig{
		PrivateKeyPath:    priv,
		AccessTokenExpire: time.Hour,
		Issuer:            "eternal-vault",
		Audience:          "eternal-vault-api",
	}
	first, err := NewJWTManager(cfg)
	require.NoError(t, err)
	second, err := NewJWTManager(cfg)
	require.NoError(t, err)

	assert.Len(t, first.GetKeyID(), 16)
	assert.Equal(t, first.GetKeyID(), second.GetKeyID())

	token, _, err := first.CreateAccessToken(AccessTokenClaims{UserID: "u", Role: "user"})
	require.NoError(t, err)
	_, err = second.VerifyAccessToken(context.Background(), token)
	assert.NoError(t, err)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	m := newTestManager(t, time.Hour)

	t.Run("garbage", func(t *testing.T) {
		_, err := m.VerifyAccessToken(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("other signing key", func(t *testing.T) {
		other := newTestManager(t, time.Hour)
		token, _, err := other.CreateAccessToken(AccessTokenClaims{UserID: "u", Role: "user"})
		require.NoError(t, err)

		_, err = m.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := newTestManager(t, time.Hour)
		other.publicKey = m.publicKey
		other.privateKey = m.privateKey
		other.config.Audience = "someone-else"
		token, _, err := other.CreateAccessToken(AccessTokenClaims{UserID: "u", Role: "user"})
		require.NoError(t, err)

		_, err = m.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		expired := newTestManager(t, -time.Minute)
		token, _, err := expired.CreateAccessToken(AccessTokenClaims{UserID: "u", Role: "user"})
		require.NoError(t, err)

		_, err = expired.VerifyAccessToken(context.Background(), token)
		assert.ErrorIs(t, err, core.ErrTokenExpired)
	})
}

func TestJWKSHandler(t *testing.T) {
	m := newTestManager(t, time.Hour)

	rec := httptest.NewRecorder()
	m.GetJWKSHandler()(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "EC", set.Keys[0]["kty"])
	assert.Equal(t, m.GetKeyID(), set.Keys[0]["kid"])
	assert.NotContains(t, set.Keys[0], "d")
}
