// Package tokens signs and verifies the opaque account-operation tokens used
// for activation and password-reset links.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forumkit/forumkit/apperr"
)

// Token operations.
const (
	OpActivateAccount = "activate_account"
	OpResetPassword   = "reset_password"
)

// Token carries the account and the operation it authorizes.
type Token struct {
	UserID    uint
	Operation string
}

// Serializer is the symmetric codec. The zero value is unusable; build one
// with NewSerializer.
type Serializer struct {
	secret []byte
	ttl    time.Duration
}

// NewSerializer builds a serializer with the shared secret and token
// lifetime. A non-positive ttl falls back to one hour.
func NewSerializer(secret string, ttl time.Duration) *Serializer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Serializer{secret: []byte(secret), ttl: ttl}
}

type claims struct {
	UserID    uint   `json:"uid"`
	Operation string `json:"op"`
	jwt.RegisteredClaims
}

// Dumps signs the token and stamps issuance time, producing an opaque string.
func (s *Serializer) Dumps(t Token) (string, error) {
	now := time.Now()
	c := claims{
		UserID:    t.UserID,
		Operation: t.Operation,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Loads verifies the signature and expiry and returns the embedded token.
// Tampered tokens come back as TokenError{invalid}, stale ones as
// TokenError{expired}, anything else unparsable as TokenError{bad}.
func (s *Serializer) Loads(raw string) (Token, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Token{}, &apperr.TokenError{Kind: apperr.TokenExpired}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Token{}, &apperr.TokenError{Kind: apperr.TokenInvalid}
		default:
			return Token{}, &apperr.TokenError{Kind: apperr.TokenBad}
		}
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Token{}, &apperr.TokenError{Kind: apperr.TokenBad}
	}
	if c.UserID == 0 || c.Operation == "" {
		return Token{}, &apperr.TokenError{Kind: apperr.TokenBad}
	}
	return Token{UserID: c.UserID, Operation: c.Operation}, nil
}
