// Package token mints and verifies the signed tokens that authorize the PDF
// renderer to fetch exactly one stored invoice. The payload carries only the
// storage key, never the invoice contents, so the renderer needs no database
// credentials.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for tokens that fail signature or claim checks.
var ErrInvalid = errors.New("token: invalid")

// Minter signs and verifies storage-key tokens with a shared secret.
type Minter struct {
	secret []byte
	ttl    time.Duration
}

// NewMinter creates a Minter. A zero ttl disables expiry, matching the
// original unlimited tokens; any positive ttl bounds how long a leaked token
// can read its invoice.
func NewMinter(secret []byte, ttl time.Duration) *Minter {
	return &Minter{secret: secret, ttl: ttl}
}

// Mint returns a signed token whose claims carry the storage key.
func (m *Minter) Mint(key string) (string, error) {
	claims := jwt.MapClaims{
		"key": key,
		"iat": jwt.NewNumericDate(time.Now()),
	}
	if m.ttl != 0 {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(m.ttl))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and returns the storage key the token grants
// access to.
func (m *Minter) Verify(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", ErrInvalid
	}
	key, ok := claims["key"].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: missing key claim", ErrInvalid)
	}
	return key, nil
}
