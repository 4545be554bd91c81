// Package auth provides authentication and authorisation for the HTTP API.
//
// It implements a 3-tier role model (viewer → operator → admin) with:
//   - Argon2id password hashing for configured operator accounts
//   - Short-lived HS256 JWT access tokens validated by signature only
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Accounts come from the security section of the configuration file. There
// is no account database; tokens for automation clients can be issued from
// the command line with the -issue-token flag.
package auth
