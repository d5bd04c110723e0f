// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

/*
Package auth implements the identity and session store: account
registration and login, password hashing, opaque bearer tokens, and the
role→feature map consulted by every capability check.

# Overview

Manager is the single entry point. It coordinates the SQLite store
(internal/database), the credential rate limiter (internal/ratelimit)
and the casbin feature map, and owns every policy decision: password
verification, session expiry, first-user promotion, last-admin
protection, and the timing discipline around login failures.

Key components:

  - Manager: register/login/logout/authenticate, profile and password
    changes, admin account operations, session cleanup
  - Features: casbin-backed role→feature map (admin ⊃ user ⊃ public)
  - HashPassword/VerifyPassword: argon2id in PHC string form, with
    transparent verification and upgrade of the legacy scheme
  - NewToken: 32 bytes of crypto/rand, hex-encoded

# Password Hashing

New hashes are argon2id, stored as PHC strings:

	$argon2id$v=19$m=65536,t=3,p=2$<b64 salt>$<b64 key>

The parameters ride in the string, so they can be raised in
configuration without invalidating existing hashes. Accounts imported
from older deployments carry "salt$sha256hex" hashes; VerifyPassword
still accepts those, and Manager.Login rewrites them as argon2id the
first time the password verifies.

# Failure Semantics

Login failures are indistinguishable from the outside. Unknown
accounts, wrong passwords and unreadable hashes all return
ErrInvalidCredentials, and an unknown account burns a full argon2id
verify against a throwaway hash so response timing does not betray
whether the email exists. Repeated failures feed the rate limiter
keyed by IP and by IP+email; a locked key answers with
RateLimitedError before any credential work happens.

# Sessions

Tokens are opaque 64-character hex strings handed out exactly once.
Lookup fetches the row by token and re-verifies the match with a
constant-time comparison; a session past its expiry is deleted during
the lookup that observes it, and the caller sees plain absence. A
background sweep (Manager.CleanupExpiredSessions) removes expired rows
that no lookup ever touched.

Thread safety: Manager is stateless between calls apart from the
injected stores, which serialize internally. All methods are safe for
concurrent use.

See internal/api for the HTTP handlers over this package and
internal/database for row storage.
*/
package auth
