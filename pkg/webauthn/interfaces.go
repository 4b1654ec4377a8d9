// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mfa-webauthn.
//
// go-mfa-webauthn is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package webauthn

import "context"

// CredentialStore manages credential source persistence.
// Implementations must serialize mutations per account so concurrent
// ceremonies cannot overwrite sibling records.
type CredentialStore interface {
	// Save stores a new credential source.
	// Returns ErrDuplicateCredential if the credential ID exists.
	Save(ctx context.Context, cred *CredentialSource) error

	// GetByUserHandle retrieves all credential sources for an account.
	// Returns an empty slice if the account has none.
	GetByUserHandle(ctx context.Context, userHandle []byte) ([]*CredentialSource, error)

	// GetByCredentialID retrieves a credential source by its ID.
	// Returns ErrUnknownCredential if the credential does not exist.
	GetByCredentialID(ctx context.Context, credID []byte) (*CredentialSource, error)

	// Update updates an existing credential source (sign counter,
	// last used). Returns ErrUnknownCredential if it does not exist.
	Update(ctx context.Context, cred *CredentialSource) error

	// Delete removes a credential source by its ID.
	// Returns ErrUnknownCredential if the credential does not exist.
	Delete(ctx context.Context, credID []byte) error

	// DeleteByUserHandle removes all credential sources for an account.
	DeleteByUserHandle(ctx context.Context, userHandle []byte) error
}

// OptionsStore holds issued ceremony options until the client
// finishes the ceremony. At most one pending record exists per
// account and ceremony type; issuing new options replaces the old
// record.
type OptionsStore interface {
	// Save stores pending options for the account and ceremony type,
	// replacing any previous record.
	Save(ctx context.Context, opts *PendingOptions) error

	// Consume atomically retrieves and deletes the pending options
	// for the account and ceremony type. A second consume, or a
	// consume with nothing pending, returns ErrChallengeMismatch.
	Consume(ctx context.Context, userHandle []byte, ceremony string) (*PendingOptions, error)

	// DeleteByUserHandle drops all pending options for an account.
	DeleteByUserHandle(ctx context.Context, userHandle []byte) error
}

// PropertyManager is the host system's scoped key/value store for
// per-account provider state. Keys are strings; values are opaque
// byte payloads. Setting a nil value deletes the key.
type PropertyManager interface {
	// Get returns the value for key, or nil when absent.
	Get(ctx context.Context, userHandle []byte, key string) ([]byte, error)

	// Set stores value under key. A nil value deletes the key.
	Set(ctx context.Context, userHandle []byte, key string, value []byte) error

	// Has reports whether key exists.
	Has(ctx context.Context, userHandle []byte, key string) (bool, error)

	// Keys lists the account's keys with the given prefix.
	Keys(ctx context.Context, userHandle []byte, prefix string) ([]string, error)
}

// JWTGenerator is an optional collaborator for issuing tokens after a
// successful authentication. Without one, FinishAuthentication
// returns an empty token.
type JWTGenerator interface {
	// GenerateToken creates a token for the authenticated user.
	GenerateToken(ctx context.Context, user User) (string, error)
}
