package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/echo-control-core/internal/auth"
	"github.com/nerrad567/echo-control-core/internal/infrastructure/config"
)

// runHashPassword reads one line from r and writes its Argon2id PHC hash to
// w, for pasting into security.accounts[].password_hash.
func runHashPassword(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// runIssueToken writes a signed API token for subject, using the JWT secret
// and TTL from the configuration file.
func runIssueToken(w io.Writer, subject string, role auth.Role) error {
	if !auth.IsValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set")
	}

	token, err := auth.IssueToken(subject, role, cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
