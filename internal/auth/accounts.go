package auth

import (
	"fmt"
	"sync"
)

// dummyHash is verified against when a username is unknown so that lookups
// for missing accounts cost the same as failed passwords.
var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Authenticator verifies credentials against a fixed set of accounts.
type Authenticator struct {
	accounts map[string]Account
}

// NewAuthenticator validates accounts and indexes them by username.
func NewAuthenticator(accounts []Account) (*Authenticator, error) {
	a := &Authenticator{accounts: make(map[string]Account, len(accounts))}
	for _, acc := range accounts {
		if !IsValidUsername(acc.Username) {
			return nil, fmt.Errorf("%w: username %q", ErrInvalidAccount, acc.Username)
		}
		if !IsValidRole(acc.Role) {
			return nil, fmt.Errorf("%w: %s has role %q", ErrInvalidAccount, acc.Username, acc.Role)
		}
		if _, err := parsePHC(acc.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: %s password hash: %w", ErrInvalidAccount, acc.Username, err)
		}
		if _, dup := a.accounts[acc.Username]; dup {
			return nil, fmt.Errorf("%w: duplicate username %q", ErrInvalidAccount, acc.Username)
		}
		a.accounts[acc.Username] = acc
	}
	return a, nil
}

// Len returns the number of configured accounts.
func (a *Authenticator) Len() int { return len(a.accounts) }

// Authenticate checks username and password.
//
// Returns:
//   - Account: The matching account
//   - error: ErrInvalidCredentials for unknown users or wrong passwords
func (a *Authenticator) Authenticate(username, password string) (Account, error) {
	acc, ok := a.accounts[username]
	if !ok {
		dummyHashOnce.Do(func() {
			dummyHash, _ = HashPassword("dummy-password") //nolint:errcheck // failure leaves an empty hash
		})
		VerifyPassword(password, dummyHash) //nolint:errcheck // timing equaliser only
		return Account{}, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, acc.PasswordHash)
	if err != nil || !match {
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}
