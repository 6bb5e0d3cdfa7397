package auth

import (
	"context"
	"crypto/subtle"
)

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(ctx context.Context, username, password string) bool
}

// StaticVerifier accepts exactly one configured pair.
type StaticVerifier struct {
	Username string `toml:"username"`
	Password string `toml:"-"`
}

func (v StaticVerifier) Verify(_ context.Context, username, password string) bool {
	if v.Username == "" {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(v.Password)) == 1

	return userOK && passOK
}
