// Package auth issues and validates the bearer tokens of the API and checks
// login credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLen is the shortest accepted HS256 signing key, in bytes.
const MinKeyLen = 32

var (
	ErrInvalidTokenConfig = errors.New("invalid token configuration")
	ErrMissingIdentity    = errors.New("token has no identity claim")
)

type Config struct {
	Key             string `toml:"-"`
	Issuer          string `toml:"issuer"`
	Audience        string `toml:"audience"`
	LifetimeMinutes int    `toml:"lifetimeMinutes"`
}

func (c *Config) Validate() error {
	switch {
	case len(c.Key) < MinKeyLen:
		return fmt.Errorf("%w: signing key must be at least %d bytes", ErrInvalidTokenConfig, MinKeyLen)
	case c.Issuer == "":
		return fmt.Errorf("%w: issuer is empty", ErrInvalidTokenConfig)
	case c.Audience == "":
		return fmt.Errorf("%w: audience is empty", ErrInvalidTokenConfig)
	case c.LifetimeMinutes <= 0:
		return fmt.Errorf("%w: lifetime must be positive", ErrInvalidTokenConfig)
	}
	return nil
}

// Claims is the payload of an issued token. Name carries the username under
// the unique_name claim.
type Claims struct {
	Name string `json:"unique_name"`
	jwt.RegisteredClaims
}

type TokenService struct {
	key      []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenService(cfg Config) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ts := TokenService{
		key:      []byte(cfg.Key),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: time.Duration(cfg.LifetimeMinutes) * time.Minute,
		now:      time.Now,
	}

	return &ts, nil
}

// Generate returns a signed token for username valid for the configured lifetime.
func (ts *TokenService) Generate(username string) (string, error) {
	now := ts.now()
	claims := Claims{
		Name: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{ts.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ts.key)
}

// Parse validates signature, issuer, audience and lifetime of a token and
// returns its claims.
func (ts *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return ts.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Name == "" {
		return nil, ErrMissingIdentity
	}

	return claims, nil
}

type claimsKey struct{}

func NewContext(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims of the authenticated caller, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
