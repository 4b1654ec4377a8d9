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

import (
	"fmt"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

// DefaultTimeout is the ceremony timeout hint in milliseconds.
const DefaultTimeout = 60000

// CredentialCreationOptions is the browser-facing registration options
// object, JSON-compatible with
// navigator.credentials.create({publicKey: ...}).
type CredentialCreationOptions struct {
	Challenge              Challenge               `json:"challenge"`
	RelyingParty           RelyingPartyEntity      `json:"rp"`
	User                   UserEntity              `json:"user"`
	Parameters             []CredentialParameter   `json:"pubKeyCredParams"`
	Timeout                int                     `json:"timeout,omitempty"`
	ExcludeCredentials     []CredentialDescriptor  `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *AuthenticatorSelection `json:"authenticatorSelection,omitempty"`
	Attestation            ConveyancePreference    `json:"attestation,omitempty"`
}

// CredentialRequestOptions is the browser-facing authentication
// options object, JSON-compatible with
// navigator.credentials.get({publicKey: ...}).
type CredentialRequestOptions struct {
	Challenge        Challenge                   `json:"challenge"`
	RelyingPartyID   string                      `json:"rpId"`
	Timeout          int                         `json:"timeout,omitempty"`
	AllowCredentials []CredentialDescriptor      `json:"allowCredentials,omitempty"`
	UserVerification UserVerificationRequirement `json:"userVerification,omitempty"`
}

// CreationParams configures NewCreationOptions. Zero-valued fields
// fall back to documented defaults.
type CreationParams struct {
	// RPID is the relying party identifier. Required.
	RPID string

	// RPDisplayName is the human readable relying party name. Required.
	RPDisplayName string

	// User identifies the account. User.ID is required.
	User UserEntity

	// Algorithms is the ordered list advertised in pubKeyCredParams.
	// Defaults to cose.SupportedAlgorithms().
	Algorithms []cose.Algorithm

	// Timeout is the ceremony timeout hint in milliseconds.
	// Defaults to DefaultTimeout.
	Timeout int

	// ExcludeCredentials lists credentials the authenticator must not
	// duplicate.
	ExcludeCredentials []CredentialDescriptor

	// Attachment optionally narrows authenticator attachment.
	Attachment AuthenticatorAttachment

	// UserVerification defaults to discouraged.
	UserVerification UserVerificationRequirement

	// Attestation defaults to none.
	Attestation ConveyancePreference
}

// NewCreationOptions builds registration options with a fresh random
// challenge. Resident keys are never requested; credentials are
// server-side second factors.
func NewCreationOptions(p CreationParams) (*CredentialCreationOptions, error) {
	if p.RPID == "" {
		return nil, fmt.Errorf("relying party ID is required")
	}
	if len(p.User.ID) == 0 {
		return nil, fmt.Errorf("user handle is required")
	}
	if len(p.User.ID) > 64 {
		return nil, fmt.Errorf("user handle exceeds 64 bytes")
	}

	challenge, err := CreateChallenge()
	if err != nil {
		return nil, err
	}

	algs := p.Algorithms
	if len(algs) == 0 {
		algs = cose.SupportedAlgorithms()
	}
	params := make([]CredentialParameter, 0, len(algs))
	for _, alg := range algs {
		params = append(params, CredentialParameter{
			Type:      PublicKeyCredentialType,
			Algorithm: alg,
		})
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	uv := p.UserVerification
	if uv == "" {
		uv = VerificationDiscouraged
	}

	attestation := p.Attestation
	if attestation == "" {
		attestation = ConveyanceNone
	}

	noResidentKey := false
	selection := &AuthenticatorSelection{
		AuthenticatorAttachment: p.Attachment,
		RequireResidentKey:      &noResidentKey,
		ResidentKey:             "discouraged",
		UserVerification:        uv,
	}

	return &CredentialCreationOptions{
		Challenge: challenge,
		RelyingParty: RelyingPartyEntity{
			ID:   p.RPID,
			Name: p.RPDisplayName,
		},
		User:                   p.User,
		Parameters:             params,
		Timeout:                timeout,
		ExcludeCredentials:     p.ExcludeCredentials,
		AuthenticatorSelection: selection,
		Attestation:            attestation,
	}, nil
}

// RequestParams configures NewRequestOptions.
type RequestParams struct {
	// RPID is the relying party identifier. Required.
	RPID string

	// AllowCredentials lists the account's registered credentials.
	// Must be non-empty; authentication without a prior registration
	// is meaningless for a second factor.
	AllowCredentials []CredentialDescriptor

	// Timeout is the ceremony timeout hint in milliseconds.
	// Defaults to DefaultTimeout.
	Timeout int

	// UserVerification defaults to discouraged.
	UserVerification UserVerificationRequirement
}

// NewRequestOptions builds authentication options with a fresh random
// challenge.
func NewRequestOptions(p RequestParams) (*CredentialRequestOptions, error) {
	if p.RPID == "" {
		return nil, fmt.Errorf("relying party ID is required")
	}
	if len(p.AllowCredentials) == 0 {
		return nil, fmt.Errorf("at least one allowed credential is required")
	}

	challenge, err := CreateChallenge()
	if err != nil {
		return nil, err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	uv := p.UserVerification
	if uv == "" {
		uv = VerificationDiscouraged
	}

	return &CredentialRequestOptions{
		Challenge:        challenge,
		RelyingPartyID:   p.RPID,
		Timeout:          timeout,
		AllowCredentials: p.AllowCredentials,
		UserVerification: uv,
	}, nil
}
