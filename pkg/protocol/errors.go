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
	"errors"
	"fmt"
)

// Sentinel errors forming the ceremony failure taxonomy. Every
// verification failure is terminal for the current ceremony; callers
// branch on these kinds, never on message text.
var (
	// ErrMalformedResponse is returned when a client response cannot be
	// parsed: bad base64url, truncated or trailing CBOR, missing fields,
	// or a credential type other than "public-key".
	ErrMalformedResponse = errors.New("malformed authenticator response")

	// ErrChallengeMismatch is returned when the challenge in the client
	// data does not byte-match the pending options, or when no pending
	// options record exists for the ceremony.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrOriginMismatch is returned when the client data origin does not
	// match the expected origin for the relying party.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrRpIdMismatch is returned when the rpIdHash in authenticator
	// data does not match SHA-256 of the expected relying party ID.
	ErrRpIdMismatch = errors.New("relying party ID mismatch")

	// ErrUserNotPresent is returned when the user-present flag is unset.
	ErrUserNotPresent = errors.New("user presence flag not set")

	// ErrUserNotVerified is returned when user verification was required
	// but the user-verified flag is unset.
	ErrUserNotVerified = errors.New("user verification required but flag not set")

	// ErrUnsupportedAttestationFormat is returned when the attestation
	// statement declares a format with no registered verifier.
	ErrUnsupportedAttestationFormat = errors.New("unsupported attestation format")

	// ErrAttestationFormat is returned when an attestation statement
	// fails its format-specific verification procedure.
	ErrAttestationFormat = errors.New("attestation statement verification failed")

	// ErrUserMismatch is returned when the response's user handle does
	// not match the expected account.
	ErrUserMismatch = errors.New("user handle mismatch")

	// ErrReplayDetected is returned when the signature counter does not
	// advance, indicating a cloned authenticator. Security relevant:
	// callers must log this kind distinctly.
	ErrReplayDetected = errors.New("signature counter replay detected")

	// ErrSignatureInvalid is returned when the assertion or attestation
	// signature does not verify. Security relevant: callers must log
	// this kind distinctly.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrCeremonyMismatch is returned when the client data type does not
	// match the ceremony in progress (webauthn.create vs webauthn.get).
	ErrCeremonyMismatch = errors.New("client data type does not match ceremony")
)

// VerificationError annotates a taxonomy error with the field that
// failed and a human readable detail, while remaining matchable with
// errors.Is against the sentinel kind.
type VerificationError struct {
	// Kind is the taxonomy sentinel this failure belongs to.
	Kind error

	// Field names the response field that failed verification.
	Field string

	// Msg is a human readable detail.
	Msg string
}

// Error returns the error message.
func (e *VerificationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

// Unwrap returns the taxonomy sentinel.
func (e *VerificationError) Unwrap() error {
	return e.Kind
}

func verifyErr(kind error, field, format string, args ...any) error {
	return &VerificationError{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}
