// Package identity resolves the signed-in owner from a stored access token.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/filex"
)

// Overridden in tests.
var nowFunc = time.Now

// Provider yields the current owner ID, or an error when nobody is
// signed in or the token is no longer valid.
type Provider interface {
	OwnerID(ctx context.Context) (string, error)
}

// TokenFile reads a JWT from disk and extracts the owner from its subject
// claim. When secret is empty the signature is not verified; claims are
// still parsed so expiry is honored either way.
type TokenFile struct {
	path   string
	secret string
}

// NewTokenFile builds a provider over the token at path.
func NewTokenFile(path, secret string) *TokenFile {
	return &TokenFile{path: path, secret: secret}
}

func (t *TokenFile) OwnerID(ctx context.Context) (string, error) {
	if !filex.Exists(t.path) {
		return "", common.ErrUnauthorized
	}
	raw, err := filex.Read(t.path)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}

	claims := &jwt.RegisteredClaims{}
	if t.secret == "" {
		_, _, err = jwt.NewParser().ParseUnverified(string(raw), claims)
	} else {
		_, err = jwt.ParseWithClaims(string(raw), claims, func(*jwt.Token) (any, error) {
			return []byte(t.secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(nowFunc()) {
		return "", common.ErrTokenExpired
	}
	if claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}

// Static always returns the same owner. Used in tests.
type Static string

func (s Static) OwnerID(context.Context) (string, error) {
	if s == "" {
		return "", common.ErrUnauthorized
	}
	return string(s), nil
}
