// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package auth

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for internal auth failures (store errors, broken
// hashes, exhausted entropy). These surface as 500s; the sentinels
// below carry the user-facing message verbatim and map to 4xx codes.
var Error = errs.Class("auth")

// User-facing failures. The error text is exactly the string sent in
// the response body.
var (
	// ErrInvalidCredentials is the single opaque login failure. Unknown
	// email, wrong password and unreadable hash are indistinguishable.
	ErrInvalidCredentials = errors.New("Email ou mot de passe incorrect")

	// ErrAccountDisabled rejects logins on deactivated accounts. Only
	// reachable after the password verified.
	ErrAccountDisabled = errors.New("Compte désactivé")

	// ErrEmailTaken rejects a registration for an existing email.
	ErrEmailTaken = errors.New("Un utilisateur avec cet email existe déjà")

	// ErrAuthRequired is the uniform "no valid session" failure.
	ErrAuthRequired = errors.New("Authentification requise")

	// ErrAdminRequired rejects non-admin access to admin operations.
	ErrAdminRequired = errors.New("Droits administrateur requis")

	// ErrFeatureDenied rejects an authenticated user whose role lacks
	// the requested feature.
	ErrFeatureDenied = errors.New("Accès non autorisé à cette fonctionnalité")

	// ErrUserNotFound reports a missing account on admin operations.
	ErrUserNotFound = errors.New("Utilisateur non trouvé")

	// ErrSelfDelete stops an admin from deleting their own account.
	ErrSelfDelete = errors.New("Impossible de supprimer votre propre compte")

	// ErrWrongPassword rejects a password change whose current password
	// does not verify.
	ErrWrongPassword = errors.New("Mot de passe actuel incorrect")

	// ErrLastAdmin protects the final active admin from demotion,
	// deactivation and deletion.
	ErrLastAdmin = errors.New("Impossible de retirer le dernier administrateur")

	// ErrInvalidRole rejects role values outside {user, admin}.
	ErrInvalidRole = errors.New("Rôle invalide")
)

// RateLimitedError reports an active lockout on a credential endpoint.
// RetryAfter is whole seconds until the lockout lifts; handlers expose
// it both in the message and as a Retry-After header.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Trop de tentatives. Réessayez dans %d secondes", e.RetryAfter)
}

// PolicyError reports a password that fails the strength policy. The
// message is user-facing.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}
