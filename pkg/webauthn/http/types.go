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

package http

import (
	"encoding/json"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/webauthn"
)

// UserRef identifies the account a request acts on. In production the
// host resolves this from its session; the demo server takes it from
// the request body.
type UserRef struct {
	// LoginType scopes the account namespace, e.g. "BE" or "FE".
	LoginType string `json:"login_type"`

	// UID is the account identifier within the login type.
	UID int `json:"uid"`

	// Name is the account username.
	Name string `json:"name,omitempty"`

	// DisplayName is the friendly account name (optional).
	DisplayName string `json:"display_name,omitempty"`
}

// User converts the reference to a service user.
func (u UserRef) User() webauthn.User {
	return webauthn.User{
		LoginType:   u.LoginType,
		UID:         u.UID,
		Name:        u.Name,
		DisplayName: u.DisplayName,
	}
}

// BeginRequest is the request body for starting either ceremony.
type BeginRequest struct {
	User UserRef `json:"user"`
}

// FinishRegistrationRequest is the request body for completing
// registration.
type FinishRegistrationRequest struct {
	User UserRef `json:"user"`

	// Description is the user-chosen label for the new credential.
	Description string `json:"description,omitempty"`

	// Icon is the user-chosen icon category for the new credential.
	Icon string `json:"icon,omitempty"`

	// Response is the raw credential creation envelope from the
	// client, passed through to the ceremony engine untouched.
	Response json.RawMessage `json:"response"`
}

// FinishAuthenticationRequest is the request body for completing
// authentication.
type FinishAuthenticationRequest struct {
	User UserRef `json:"user"`

	// Response is the raw credential assertion envelope from the
	// client.
	Response json.RawMessage `json:"response"`
}

// CredentialSummary is the API view of a stored credential.
type CredentialSummary struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	LastUsedAt  int64  `json:"last_used_at,omitempty"`
	SignCount   uint32 `json:"sign_count"`
}

// RegistrationResponse is the response after successful registration.
type RegistrationResponse struct {
	Credential CredentialSummary `json:"credential"`
}

// AuthResponse is the response after successful authentication.
type AuthResponse struct {
	// Token is the post-auth token, empty when no generator is
	// configured.
	Token string `json:"token,omitempty"`

	Credential CredentialSummary `json:"credential"`
}

// StatusResponse reports whether the account has the method active.
type StatusResponse struct {
	Active   bool `json:"active"`
	Attempts int  `json:"attempts"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeChallengeMismatch   = "challenge_mismatch"
	ErrorCodeNoCredentials       = "no_credentials"
	ErrorCodeDuplicateCredential = "duplicate_credential"
	ErrorCodeUnknownCredential   = "unknown_credential"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeReplayDetected      = "replay_detected"
	ErrorCodeInternalError       = "internal_error"
)
