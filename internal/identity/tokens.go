package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the custom claims carried by issued tokens.
type TokenClaims struct {
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
}

// Validate satisfies validator.CustomClaims. Role and email are optional.
func (c *TokenClaims) Validate(ctx context.Context) error {
	return nil
}

type mintedClaims struct {
	TokenClaims
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 custom tokens.
type Tokens struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokens(secret, issuer, audience string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Mint signs a token for uid carrying the given claims.
func (t *Tokens) Mint(uid string, claims TokenClaims) (string, error) {
	if uid == "" {
		return "", errors.New("mint token: empty uid")
	}

	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mintedClaims{
		TokenClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   uid,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validator builds the request-side verifier for tokens minted here.
func (t *Tokens) Validator() (*validator.Validator, error) {
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return t.secret, nil
	}

	v, err := validator.New(
		keyFunc,
		validator.HS256,
		t.issuer,
		[]string{t.audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &TokenClaims{}
		}),
		validator.WithAllowedClockSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("set up token validator: %w", err)
	}
	return v, nil
}
