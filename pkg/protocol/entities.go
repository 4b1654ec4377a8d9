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

package protocol

import "github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"

// UserVerificationRequirement expresses how strongly the relying party
// requires the authenticator to verify the user (PIN, biometric).
type UserVerificationRequirement string

const (
	// VerificationRequired demands user verification; the ceremony
	// fails if the UV flag is unset.
	VerificationRequired UserVerificationRequirement = "required"

	// VerificationPreferred asks for verification but accepts
	// responses without it.
	VerificationPreferred UserVerificationRequirement = "preferred"

	// VerificationDiscouraged asks the authenticator to skip
	// verification. The default for second-factor use.
	VerificationDiscouraged UserVerificationRequirement = "discouraged"
)

// AuthenticatorAttachment narrows credential creation to a class of
// authenticators.
type AuthenticatorAttachment string

const (
	// Platform selects authenticators built into the client device.
	Platform AuthenticatorAttachment = "platform"

	// CrossPlatform selects roaming authenticators such as USB keys.
	CrossPlatform AuthenticatorAttachment = "cross-platform"
)

// ConveyancePreference expresses how much attestation information the
// relying party wants back during registration.
type ConveyancePreference string

const (
	// ConveyanceNone asks the client to replace attestation with the
	// "none" statement.
	ConveyanceNone ConveyancePreference = "none"

	// ConveyanceIndirect permits anonymized attestation.
	ConveyanceIndirect ConveyancePreference = "indirect"

	// ConveyanceDirect asks for the authenticator's own attestation.
	ConveyanceDirect ConveyancePreference = "direct"
)

// AuthenticatorTransport is a hint describing how the client can reach
// the authenticator that holds a credential.
type AuthenticatorTransport string

const (
	TransportUSB      AuthenticatorTransport = "usb"
	TransportNFC      AuthenticatorTransport = "nfc"
	TransportBLE      AuthenticatorTransport = "ble"
	TransportInternal AuthenticatorTransport = "internal"
	TransportHybrid   AuthenticatorTransport = "hybrid"
)

// CredentialType is the W3C credential type. "public-key" is the only
// value defined.
type CredentialType string

// PublicKeyCredentialType is the sole registered credential type.
const PublicKeyCredentialType CredentialType = "public-key"

// RelyingPartyEntity identifies the relying party in creation options.
type RelyingPartyEntity struct {
	// ID is the relying party identifier, an effective domain.
	ID string `json:"id"`

	// Name is the human readable relying party name.
	Name string `json:"name"`
}

// UserEntity identifies the account a credential is being created for.
type UserEntity struct {
	// ID is the opaque user handle, at most 64 bytes.
	ID URLEncodedBase64 `json:"id"`

	// Name is the account identifier shown in credential pickers.
	Name string `json:"name"`

	// DisplayName is the friendly account name.
	DisplayName string `json:"displayName"`
}

// CredentialParameter advertises one acceptable credential algorithm.
type CredentialParameter struct {
	Type      CredentialType `json:"type"`
	Algorithm cose.Algorithm `json:"alg"`
}

// CredentialDescriptor identifies an existing credential, used both to
// exclude duplicates during registration and to allow credentials
// during authentication.
type CredentialDescriptor struct {
	Type       CredentialType           `json:"type"`
	ID         URLEncodedBase64         `json:"id"`
	Transports []AuthenticatorTransport `json:"transports,omitempty"`
}

// AuthenticatorSelection constrains which authenticators may
// participate in credential creation.
type AuthenticatorSelection struct {
	AuthenticatorAttachment AuthenticatorAttachment     `json:"authenticatorAttachment,omitempty"`
	RequireResidentKey      *bool                       `json:"requireResidentKey,omitempty"`
	ResidentKey             string                      `json:"residentKey,omitempty"`
	UserVerification        UserVerificationRequirement `json:"userVerification,omitempty"`
}
