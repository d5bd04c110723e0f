// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32

	phcPrefix = "$argon2id$"
)

// Argon2Params tunes the argon2id cost. Memory is in KiB. The defaults
// target roughly 100 ms per verify on server hardware; raising them only
// affects new hashes because every PHC string carries its own parameters.
type Argon2Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
}

// DefaultArgon2Params returns the production cost parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:  64 * 1024,
		Time:    3,
		Threads: 2,
	}
}

// HashPassword derives an argon2id hash with a fresh random salt and
// returns it as a PHC string: $argon2id$v=19$m=...,t=...,p=...$salt$key
// with unpadded standard base64 fields.
func HashPassword(password string, p Argon2Params) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", Error.Wrap(fmt.Errorf("salt: %w", err))
	}

	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, argon2KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix,
		argon2.Version,
		p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks password against a stored hash. It accepts both
// the argon2id PHC form and the legacy "salt$sha256hex" form; legacy
// reports true so callers can rewrite the hash after a successful
// verify. A hash in neither form is an error.
func VerifyPassword(password, encoded string) (ok bool, legacy bool, err error) {
	if strings.HasPrefix(encoded, phcPrefix) {
		ok, err = verifyArgon2(password, encoded)
		return ok, false, err
	}
	ok, err = verifyLegacy(password, encoded)
	return ok, true, err
}

// verifyArgon2 re-derives the key using the parameters carried in the
// PHC string and compares in constant time.
func verifyArgon2(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	// ["", "argon2id", "v=19", "m=..,t=..,p=..", salt, key]
	if len(parts) != 6 {
		return false, Error.New("malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, Error.Wrap(fmt.Errorf("argon2id version: %w", err))
	}
	if version != argon2.Version {
		return false, Error.New("unsupported argon2id version %d", version)
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return false, Error.Wrap(fmt.Errorf("argon2id parameters: %w", err))
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, Error.Wrap(fmt.Errorf("argon2id salt: %w", err))
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, Error.Wrap(fmt.Errorf("argon2id key: %w", err))
	}
	if len(key) == 0 {
		return false, Error.New("empty argon2id key")
	}

	want := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(want, key) == 1, nil
}

// verifyLegacy checks the pre-migration "salt$sha256hex" form, where the
// digest is sha256(salt + password) in lowercase hex.
func verifyLegacy(password, encoded string) (bool, error) {
	salt, digest, found := strings.Cut(encoded, "$")
	if !found || salt == "" || len(digest) != sha256.Size*2 {
		return false, Error.New("unrecognized password hash form")
	}

	sum := sha256.Sum256([]byte(salt + password))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1, nil
}

// LegacyHash builds a "salt$sha256hex" hash. Only tests and migration
// tooling write this form; the server never persists it for new
// passwords.
func LegacyHash(password string) string {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		// rand.Read on supported platforms does not fail; keep the
		// signature simple for callers.
		panic(err)
	}
	hexSalt := hex.EncodeToString(salt)
	sum := sha256.Sum256([]byte(hexSalt + password))
	return hexSalt + "$" + hex.EncodeToString(sum[:])
}

// CheckPasswordPolicy enforces the minimum strength for new passwords:
// at least 8 characters including an upper-case letter, a lower-case
// letter and a digit. The returned PolicyError carries the user-facing
// message.
func CheckPasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return &PolicyError{Reason: "Le mot de passe doit contenir au moins 8 caractères"}
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		return &PolicyError{Reason: "Le mot de passe doit contenir au moins une majuscule"}
	}
	if !lower {
		return &PolicyError{Reason: "Le mot de passe doit contenir au moins une minuscule"}
	}
	if !digit {
		return &PolicyError{Reason: "Le mot de passe doit contenir au moins un chiffre"}
	}
	return nil
}
