// AngelaMos | 2026
// security_test.go

package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	valid, stale, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.False(t, stale)

	valid, _, err = VerifyPassword("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, valid)

	other, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb"} {
		_, _, err := VerifyPassword("x", h)
		assert.Error(t, err, h)
	}
}

func TestVerifyPasswordTimingSafeWithoutHash(t *testing.T) {
	valid, stale, err := VerifyPasswordTimingSafe("anything", nil)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.False(t, stale)

	empty := ""
	valid, _, err = VerifyPasswordTimingSafe("anything", &empty)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestGenerateAccessCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 200 {
		code, err := GenerateAccessCode(8)
		require.NoError(t, err)
		require.Len(t, code, 8)
		for _, ch := range code {
			assert.True(t, strings.ContainsRune(accessCodeAlphabet, ch), "unexpected %q", ch)
		}
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 195)
}

func TestSecretsEqual(t *testing.T) {
	assert.True(t, SecretsEqual("setup-token", "setup-token"))
	assert.False(t, SecretsEqual("setup-token", "setup-tokem"))
	assert.False(t, SecretsEqual("setup-token", "setup"))
	assert.Len(t, HashToken("abc"), 64)
}
