package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	tokens := NewTokens("secret", time.Hour, "pharmadesk")

	signed, issued, err := tokens.Issue(7, 3)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, int64(3), claims.OrganizationID)
	assert.Equal(t, issued.ID, claims.ID)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other", time.Hour, "pharmadesk").Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewTokens("secret", time.Hour, "someone-else").Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokens("secret", time.Minute, "pharmadesk")
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		expired, _, err := old.Issue(1, 1)
		require.NoError(t, err)
		_, err = tokens.Parse(expired)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, issued)
		s, err := token.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = tokens.Parse(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestMemoryBlacklist(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlacklist()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Revoke(ctx, "a", now.Add(time.Hour)))
	require.NoError(t, b.Revoke(ctx, "stale", now.Add(-time.Second)))

	revoked, err := b.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = b.IsRevoked(ctx, "stale")
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = b.IsRevoked(ctx, "a")
	assert.False(t, revoked)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(20 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))

	now = now.Add(time.Hour)
	rl.Allow("9.9.9.9")
	assert.Len(t, rl.limiters, 1)
}
