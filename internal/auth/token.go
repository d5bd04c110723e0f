// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package auth

import (
	"crypto/rand"
	"encoding/hex"
)

const tokenBytes = 32

// TokenLen is the exact length of a serialized bearer token: 32 random
// bytes as lowercase hex. Anything of a different length is rejected
// before the store is consulted.
const TokenLen = tokenBytes * 2

// NewToken returns a fresh bearer token from crypto/rand.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", Error.Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
