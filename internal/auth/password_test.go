// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package auth

import (
	"strings"
	"testing"
)

// testArgon2Params keeps hashing cheap in the suite. The production
// defaults target ~100 ms per verify, which would dominate test time.
func testArgon2Params() Argon2Params {
	return Argon2Params{Memory: 8 * 1024, Time: 1, Threads: 1}
}

// ===================================================================================================
// Hashing Tests
// ===================================================================================================

func TestHashAndVerifyArgon2(t *testing.T) {
	hash, err := HashPassword("Abcdefg1", testArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %q", hash)
	}

	ok, legacy, err := VerifyPassword("Abcdefg1", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify")
	}
	if legacy {
		t.Fatal("argon2id hash reported as legacy")
	}

	ok, _, err = VerifyPassword("Abcdefg2", hash)
	if err != nil {
		t.Fatalf("VerifyPassword wrong password: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	p := testArgon2Params()
	h1, err := HashPassword("Abcdefg1", p)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("Abcdefg1", p)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerifyRespectsEmbeddedParams(t *testing.T) {
	// A hash produced under one parameter set must verify regardless of
	// the server's current configuration, because the PHC string carries
	// its own parameters.
	hash, err := HashPassword("Abcdefg1", Argon2Params{Memory: 16 * 1024, Time: 2, Threads: 1})
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, _, err := VerifyPassword("Abcdefg1", hash)
	if err != nil || !ok {
		t.Fatalf("verify under different params: ok=%v err=%v", ok, err)
	}
}

// ===================================================================================================
// Legacy Scheme Tests
// ===================================================================================================

func TestVerifyLegacyHash(t *testing.T) {
	hash := LegacyHash("Abcdefg1")
	if strings.HasPrefix(hash, "$") {
		t.Fatalf("legacy hash must not look like a PHC string: %q", hash)
	}

	ok, legacy, err := VerifyPassword("Abcdefg1", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify against legacy hash")
	}
	if !legacy {
		t.Fatal("legacy hash not reported as legacy")
	}

	ok, _, err = VerifyPassword("Abcdefg2", hash)
	if err != nil {
		t.Fatalf("VerifyPassword wrong password: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified against legacy hash")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	malformed := []string{
		"",
		"no-dollar-anywhere",
		"salt$tooshort",
		"$argon2id$v=19$m=8192,t=1,p=1$onlyfourparts",
		"$argon2id$v=7$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=bad$c2FsdA$aGFzaA",
	}
	for _, h := range malformed {
		ok, _, err := VerifyPassword("Abcdefg1", h)
		if err == nil {
			t.Errorf("VerifyPassword(%q): want error, got ok=%v", h, ok)
		}
		if ok {
			t.Errorf("VerifyPassword(%q): malformed hash verified", h)
		}
	}
}

// ===================================================================================================
// Policy Tests
// ===================================================================================================

func TestCheckPasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantMsg  string
	}{
		{"valid", "Abcdefg1", ""},
		{"valid with accents", "Véhicule7", ""},
		{"too short", "Ab1", "Le mot de passe doit contenir au moins 8 caractères"},
		{"no uppercase", "abcdefg1", "Le mot de passe doit contenir au moins une majuscule"},
		{"no lowercase", "ABCDEFG1", "Le mot de passe doit contenir au moins une minuscule"},
		{"no digit", "Abcdefgh", "Le mot de passe doit contenir au moins un chiffre"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPasswordPolicy(tt.password)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("CheckPasswordPolicy(%q): unexpected error %v", tt.password, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("CheckPasswordPolicy(%q): want error", tt.password)
			}
			if err.Error() != tt.wantMsg {
				t.Fatalf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
