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
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

// AssertionExpectations carries the server-side state an
// authentication response is checked against.
type AssertionExpectations struct {
	// Challenge is the pending challenge issued with the request
	// options.
	Challenge Challenge

	// RPID is the relying party identifier.
	RPID string

	// Origins lists the exact allowed client origins.
	Origins []string

	// SecuredRPIDs lists hosts whose subdomains are trusted origins.
	SecuredRPIDs []string

	// RequireUserVerification fails the ceremony when the UV flag is
	// unset.
	RequireUserVerification bool

	// CredentialID is the stored credential the response claims to
	// come from.
	CredentialID []byte

	// PublicKey is the stored credential's raw CBOR COSE public key.
	PublicKey []byte

	// UserHandle is the expected account handle. A response carrying
	// a different non-empty handle fails.
	UserHandle []byte

	// StoredSignCount is the credential's last recorded signature
	// counter.
	StoredSignCount uint32
}

// VerifyAssertion checks a parsed authentication response against the
// expectations and, on success, returns the counter value the caller
// must persist. It never touches storage.
//
// The counter check is fail-closed: whenever either the stored or the
// received counter is nonzero, the received value must be strictly
// greater, otherwise ErrReplayDetected. Only an authenticator that has
// never reported a counter (both values zero) skips the check.
func VerifyAssertion(parsed *ParsedCredentialAssertionData, exp AssertionExpectations) (uint32, error) {
	if err := parsed.ClientData.Verify(GetCeremony, exp.Challenge, exp.Origins, exp.SecuredRPIDs); err != nil {
		return 0, err
	}

	if !bytes.Equal(parsed.ID, exp.CredentialID) {
		return 0, verifyErr(ErrMalformedResponse, "rawId",
			"response credential ID does not match the stored credential")
	}

	if len(parsed.UserHandle) > 0 && !bytes.Equal(parsed.UserHandle, exp.UserHandle) {
		return 0, verifyErr(ErrUserMismatch, "response.userHandle",
			"handle does not belong to the expected account")
	}

	authData := &parsed.AuthData
	rpIDHash := sha256.Sum256([]byte(exp.RPID))
	if !bytes.Equal(authData.RPIDHash, rpIDHash[:]) {
		return 0, verifyErr(ErrRpIdMismatch, "authData.rpIdHash",
			"hash does not match relying party ID %q", exp.RPID)
	}

	if !authData.Flags.UserPresent() {
		return 0, verifyErr(ErrUserNotPresent, "authData.flags", "UP bit clear")
	}
	if exp.RequireUserVerification && !authData.Flags.UserVerified() {
		return 0, verifyErr(ErrUserNotVerified, "authData.flags", "UV bit clear")
	}

	key, err := cose.ParsePublicKey(exp.PublicKey)
	if err != nil {
		return 0, err
	}

	// The authenticator signs authData || SHA-256(clientDataJSON).
	clientDataHash := sha256.Sum256(parsed.RawClientData)
	signed := make([]byte, 0, len(parsed.RawAuthData)+len(clientDataHash))
	signed = append(signed, parsed.RawAuthData...)
	signed = append(signed, clientDataHash[:]...)
	if err := key.Verify(signed, parsed.Signature); err != nil {
		if errors.Is(err, cose.ErrSignatureInvalid) {
			return 0, verifyErr(ErrSignatureInvalid, "response.signature", "%v", err)
		}
		return 0, err
	}

	if authData.SignCount != 0 || exp.StoredSignCount != 0 {
		if authData.SignCount <= exp.StoredSignCount {
			return 0, verifyErr(ErrReplayDetected, "authData.signCount",
				"counter %d did not advance past stored %d",
				authData.SignCount, exp.StoredSignCount)
		}
	}

	return authData.SignCount, nil
}
