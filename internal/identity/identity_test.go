package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehq/tracesync/internal/common"
)

func writeToken(t *testing.T, secret, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(signed), 0o600))
	return path
}

func TestTokenFileOwnerID(t *testing.T) {
	ctx := context.Background()
	path := writeToken(t, "s3cret", "owner-1", time.Now().Add(time.Hour))

	p := NewTokenFile(path, "s3cret")
	owner, err := p.OwnerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner)
}

func TestTokenFileMissing(t *testing.T) {
	p := NewTokenFile(filepath.Join(t.TempDir(), "absent"), "s3cret")
	_, err := p.OwnerID(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestTokenFileWrongSecret(t *testing.T) {
	path := writeToken(t, "s3cret", "owner-1", time.Now().Add(time.Hour))
	p := NewTokenFile(path, "other")
	_, err := p.OwnerID(context.Background())
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestTokenFileExpired(t *testing.T) {
	path := writeToken(t, "s3cret", "owner-1", time.Now().Add(-time.Hour))
	p := NewTokenFile(path, "s3cret")
	_, err := p.OwnerID(context.Background())
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestTokenFileUnverifiedParse(t *testing.T) {
	path := writeToken(t, "whatever", "owner-2", time.Now().Add(time.Hour))

	// Empty secret skips signature verification but still reads claims.
	p := NewTokenFile(path, "")
	owner, err := p.OwnerID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner-2", owner)
}

func TestTokenFileUnverifiedExpired(t *testing.T) {
	path := writeToken(t, "whatever", "owner-2", time.Now().Add(-time.Minute))
	p := NewTokenFile(path, "")
	_, err := p.OwnerID(context.Background())
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestStatic(t *testing.T) {
	owner, err := Static("o1").OwnerID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "o1", owner)

	_, err = Static("").OwnerID(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
