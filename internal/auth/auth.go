// Package auth issues and verifies the HS256 bearer tokens that gate the
// relay's HTTP API: subject, type, expiry, and optional scopes under one
// shared HMAC secret.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/airchainpay/relay/internal/relayerr"
)

// Claims is the registered claim set carried by a relay bearer token. Type
// distinguishes device tokens from operator tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type   string   `json:"typ,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// Issuer signs and verifies tokens under a single shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an Issuer. secret must be non-empty; ttl is the lifetime
// applied to tokens minted by Issue, defaulting to 24h when zero.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, relayerr.Auth("ERR_JWT_SECRET_EMPTY", "jwt secret must not be empty", nil)
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue mints a signed bearer token for subject. tokenType distinguishes
// token audiences ("device", "operator"); scopes further narrow what the
// token may call.
func (i *Issuer) Issue(subject, tokenType string, scopes ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Type:   tokenType,
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", relayerr.Auth("ERR_JWT_SIGN", "failed to sign token", err)
	}
	return signed, nil
}

// Verify parses and validates tokenString, returning its claims if the
// signature, expiry, and not-before checks all pass.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, relayerr.Auth("ERR_JWT_INVALID", "token validation failed", err)
	}
	if !token.Valid {
		return nil, relayerr.Auth("ERR_JWT_INVALID", "token is not valid", nil)
	}
	return claims, nil
}

// HasScope reports whether claims authorizes the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", relayerr.Auth("ERR_JWT_MISSING", "missing bearer authorization header", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", relayerr.Auth("ERR_JWT_MISSING", "empty bearer token", nil)
	}
	return token, nil
}
