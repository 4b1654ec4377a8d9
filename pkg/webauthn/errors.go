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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/protocol"
)

// Sentinel errors for service and store operations. Ceremony
// verification failures surface the pkg/protocol taxonomy unchanged;
// the aliases below let callers match everything through this package.
var (
	// ErrDuplicateCredential is returned when registration presents a
	// credential ID that is already stored.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrUnknownCredential is returned when a response references a
	// credential ID that is not stored for the account.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrNoCredentials is returned when an operation needs registered
	// credentials and the account has none.
	ErrNoCredentials = errors.New("no registered credentials")

	// ErrNotConfigured is returned when the service is used before
	// being constructed with valid parameters.
	ErrNotConfigured = errors.New("webauthn service not configured")

	// ErrNotActive is returned when authentication is attempted
	// against a deactivated account.
	ErrNotActive = errors.New("webauthn is not active for this account")
)

// Re-exported ceremony failure kinds, for callers that only import
// this package.
var (
	ErrMalformedResponse            = protocol.ErrMalformedResponse
	ErrChallengeMismatch            = protocol.ErrChallengeMismatch
	ErrCeremonyMismatch             = protocol.ErrCeremonyMismatch
	ErrOriginMismatch               = protocol.ErrOriginMismatch
	ErrRpIdMismatch                 = protocol.ErrRpIdMismatch
	ErrUserMismatch                 = protocol.ErrUserMismatch
	ErrUserNotPresent               = protocol.ErrUserNotPresent
	ErrUserNotVerified              = protocol.ErrUserNotVerified
	ErrReplayDetected               = protocol.ErrReplayDetected
	ErrSignatureInvalid             = protocol.ErrSignatureInvalid
	ErrUnsupportedAttestationFormat = protocol.ErrUnsupportedAttestationFormat
	ErrAttestationFormat            = protocol.ErrAttestationFormat
)

// WebAuthnError wraps an error with the operation that failed.
type WebAuthnError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *WebAuthnError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *WebAuthnError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *WebAuthnError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new WebAuthnError with the given operation and error.
func NewError(op string, err error) error {
	return &WebAuthnError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsReplayDetected returns true if the error indicates a signature
// counter rollback.
func IsReplayDetected(err error) bool {
	return errors.Is(err, protocol.ErrReplayDetected)
}

// IsSignatureInvalid returns true if the error indicates a failed
// signature verification.
func IsSignatureInvalid(err error) bool {
	return errors.Is(err, protocol.ErrSignatureInvalid)
}

// IsChallengeMismatch returns true if the error indicates a stale or
// missing ceremony challenge.
func IsChallengeMismatch(err error) bool {
	return errors.Is(err, protocol.ErrChallengeMismatch)
}

// IsDuplicateCredential returns true if the error indicates an
// already registered credential ID.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsUnknownCredential returns true if the error indicates a missing
// credential record.
func IsUnknownCredential(err error) bool {
	return errors.Is(err, ErrUnknownCredential)
}
