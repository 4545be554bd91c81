package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrBadHash is returned for password hashes that are not Argon2id PHC strings.
var ErrBadHash = errors.New("auth: malformed password hash")

// argonParams are the Argon2id cost settings stored in a hash.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// defaultParams is used for new hashes. Verification uses the parameters
// recorded in each hash.
var defaultParams = argonParams{memory: 64 * 1024, time: 3, threads: 1}

const (
	saltLen = 16
	keyLen  = 32
)

// phcHash is a decoded $argon2id$v=19$m=...,t=...,p=...$salt$key string.
type phcHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.time, h.params.threads,
		enc.EncodeToString(h.salt), enc.EncodeToString(h.key))
}

// derive computes the key for password under h's salt and parameters.
func (h phcHash) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.params.time, h.params.memory, h.params.threads, uint32(len(h.key))) //nolint:gosec // G115: key length is small
}

// HashPassword returns an Argon2id PHC string for password, suitable for an
// account's password_hash.
func HashPassword(password string) (string, error) {
	h := phcHash{params: defaultParams, salt: make([]byte, saltLen), key: make([]byte, keyLen)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// VerifyPassword reports whether password matches encoded. The error is
// non-nil only when encoded cannot be parsed.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, h.derive(password)) == 1, nil
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	// Leading "$" leaves an empty first field.
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" { //nolint:mnd // "", alg, version, params, salt, key
		return h, fmt.Errorf("%w: expected 5 fields", ErrBadHash)
	}
	if fields[1] != "argon2id" {
		return h, fmt.Errorf("%w: algorithm %q", ErrBadHash, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return h, fmt.Errorf("%w: version %q", ErrBadHash, fields[2])
	}
	p := &h.params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return h, fmt.Errorf("%w: parameters %q", ErrBadHash, fields[3])
	}
	if p.time == 0 || p.threads == 0 {
		return h, fmt.Errorf("%w: zero cost parameter", ErrBadHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %w", ErrBadHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: key", ErrBadHash)
	}
	return h, nil
}
