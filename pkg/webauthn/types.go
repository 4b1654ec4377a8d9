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

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/protocol"
)

// User identifies an account in the host system. The WebAuthn user
// handle is derived deterministically so a re-registration for the
// same account always reuses the same handle.
type User struct {
	// LoginType scopes the account namespace, e.g. "BE" for backend
	// and "FE" for frontend accounts.
	LoginType string `json:"login_type"`

	// UID is the account identifier within the login type.
	UID int `json:"uid"`

	// Name is the account username.
	Name string `json:"name"`

	// DisplayName is the friendly account name shown in credential
	// pickers. Falls back to Name when empty.
	DisplayName string `json:"display_name,omitempty"`
}

// UserHandle derives the deterministic WebAuthn user handle for an
// account: loginType + ":" + uid, e.g. "BE:12". Handles are stable
// identifiers, not secrets.
func UserHandle(loginType string, uid int) []byte {
	return []byte(fmt.Sprintf("%s:%d", loginType, uid))
}

// Handle returns the user's WebAuthn user handle.
func (u User) Handle() []byte {
	return UserHandle(u.LoginType, u.UID)
}

// Entity returns the protocol user entity for creation options.
func (u User) Entity() protocol.UserEntity {
	displayName := u.DisplayName
	if displayName == "" {
		displayName = u.Name
	}
	return protocol.UserEntity{
		ID:          u.Handle(),
		Name:        u.Name,
		DisplayName: displayName,
	}
}

// CredentialSource is the public key record the Relying Party stores
// for one registered credential. The JSON form is the storage format;
// ID, PublicKey and SignCount must survive a round trip bit-identical.
type CredentialSource struct {
	// ID is the credential identifier assigned by the authenticator.
	ID protocol.URLEncodedBase64 `json:"id"`

	// PublicKey is the credential's public key in raw COSE CBOR form.
	PublicKey protocol.URLEncodedBase64 `json:"public_key"`

	// AttestationType classifies how the credential was attested at
	// registration (None, Basic, Self, AttCA).
	AttestationType string `json:"attestation_type"`

	// Transports lists the transports reported by the client.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// UserHandle is the account handle the credential belongs to.
	UserHandle protocol.URLEncodedBase64 `json:"user_handle"`

	// SignCount is the last verified signature counter.
	SignCount uint32 `json:"sign_count"`

	// AAGUID identifies the authenticator model.
	AAGUID protocol.URLEncodedBase64 `json:"aaguid,omitempty"`

	// Description is the user-chosen label for the credential.
	Description string `json:"description,omitempty"`

	// Icon is the user-chosen icon category for the credential.
	Icon string `json:"icon,omitempty"`

	// CreatedAt is the registration time in unix seconds.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the last modification time in unix seconds,
	// bumped on every counter update.
	UpdatedAt int64 `json:"updated_at"`

	// LastUsedAt is the last successful authentication in unix
	// seconds, zero until first use.
	LastUsedAt int64 `json:"last_used_at,omitempty"`
}

// Descriptor returns the credential descriptor for allow and exclude
// lists.
func (c *CredentialSource) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:       protocol.PublicKeyCredentialType,
		ID:         c.ID,
		Transports: c.Transports,
	}
}

// newCredentialSource builds a credential source from a verified
// attestation.
func newCredentialSource(user User, att *protocol.AttestedCredential, description, icon string, now time.Time) *CredentialSource {
	return &CredentialSource{
		ID:              att.ID,
		PublicKey:       att.PublicKey,
		AttestationType: att.AttestationType,
		Transports:      att.Transports,
		UserHandle:      user.Handle(),
		SignCount:       att.SignCount,
		AAGUID:          att.AAGUID,
		Description:     description,
		Icon:            icon,
		CreatedAt:       now.Unix(),
		UpdatedAt:       now.Unix(),
	}
}

// PendingOptions is the server-side record of an issued ceremony,
// consumed exactly once by the matching finish operation.
type PendingOptions struct {
	// Ceremony is "webauthn.create" or "webauthn.get".
	Ceremony string `json:"ceremony"`

	// Challenge is the issued challenge.
	Challenge protocol.URLEncodedBase64 `json:"challenge"`

	// UserHandle is the account the ceremony was issued for.
	UserHandle protocol.URLEncodedBase64 `json:"user_handle"`

	// UserVerification is the requirement the options advertised.
	UserVerification protocol.UserVerificationRequirement `json:"user_verification,omitempty"`

	// AllowedCredentialIDs restricts which credentials may answer an
	// authentication ceremony.
	AllowedCredentialIDs []protocol.URLEncodedBase64 `json:"allowed_credential_ids,omitempty"`

	// CreatedAt is the issue time in unix seconds.
	CreatedAt int64 `json:"created_at"`
}
