package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	credDirName  = ".todoctl"
	credFileName = "credentials.json"

	envToken  = "TODOCTL_TOKEN"
	envServer = "TODOCTL_SERVER"
)

type credentials struct {
	Server  string    `json:"server"`
	Token   string    `json:"token"`
	SavedAt time.Time `json:"savedAt"`
}

func credFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, credDirName, credFileName), nil
}

// loadToken returns the token from TODOCTL_TOKEN or the credentials file.
// An empty token without error means not logged in.
func loadToken() (string, error) {
	if env := strings.TrimSpace(os.Getenv(envToken)); env != "" {
		return strings.TrimPrefix(env, "Bearer "), nil
	}

	p, err := credFilePath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read credentials: %w", err)
	}

	var c credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	return c.Token, nil
}

func saveToken(server, token string) error {
	p, err := credFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	b, err := json.MarshalIndent(credentials{Server: server, Token: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(p, 0o600)
}

func removeToken() error {
	p, err := credFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server is the one that checks it.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
