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

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

// Attestation type classifications produced by statement verifiers.
const (
	// AttestationTypeNone means the authenticator conveyed no
	// attestation.
	AttestationTypeNone = "None"

	// AttestationTypeBasic means the statement chains to an
	// authenticator model certificate.
	AttestationTypeBasic = "Basic"

	// AttestationTypeSelf means the statement is signed with the
	// credential private key itself.
	AttestationTypeSelf = "Self"

	// AttestationTypeAttCA means the statement chains to an
	// attestation CA (TPM).
	AttestationTypeAttCA = "AttCA"
)

// AttestationObject is the CBOR document carrying authenticator data
// and the attestation statement.
type AttestationObject struct {
	// RawAuthData is the exact authData bytes the attestation
	// signature covers.
	RawAuthData []byte

	// AuthData is the parsed authenticator data.
	AuthData AuthenticatorData

	// Format is the attestation statement format identifier.
	Format string

	// RawStatement is the undecoded attStmt map; each format handler
	// decodes its own shape.
	RawStatement cbor.RawMessage
}

type attestationObjectWire struct {
	AuthData     []byte          `cbor:"authData"`
	Format       string          `cbor:"fmt"`
	RawStatement cbor.RawMessage `cbor:"attStmt"`
}

// Unmarshal decodes an attestation object from CBOR. Trailing bytes
// after the CBOR document are rejected.
func (a *AttestationObject) Unmarshal(data []byte) error {
	var wire attestationObjectWire
	rest, err := cbor.UnmarshalFirst(data, &wire)
	if err != nil {
		return verifyErr(ErrMalformedResponse, "attestationObject", "invalid CBOR: %v", err)
	}
	if len(rest) != 0 {
		return verifyErr(ErrMalformedResponse, "attestationObject",
			"%d trailing bytes after CBOR document", len(rest))
	}
	if wire.Format == "" {
		return verifyErr(ErrMalformedResponse, "attestationObject", "missing fmt")
	}

	a.RawAuthData = wire.AuthData
	a.Format = wire.Format
	a.RawStatement = wire.RawStatement
	return a.AuthData.Unmarshal(wire.AuthData)
}

// AttestationFormatHandler verifies one attestation statement format.
// It receives the parsed attestation object and the SHA-256 of the
// client data JSON, and returns the attestation type classification.
type AttestationFormatHandler func(obj *AttestationObject, clientDataHash []byte) (attType string, err error)

// FormatRegistry maps attestation statement format identifiers to
// their verifiers. Registries are immutable after construction, so a
// single instance is safe for concurrent ceremonies.
type FormatRegistry struct {
	handlers map[string]AttestationFormatHandler
}

// RegistryOption customizes a FormatRegistry under construction.
type RegistryOption func(*FormatRegistry)

// WithSafetyNetClient enables remote SafetyNet token verification via
// the supplied collaborator. Without it the android-safetynet handler
// performs structural verification only.
func WithSafetyNetClient(client SafetyNetClient) RegistryOption {
	return func(r *FormatRegistry) {
		r.handlers[safetyNetFormat] = verifySafetyNetWith(client)
	}
}

// WithFormat registers or replaces a handler for the named format.
func WithFormat(format string, handler AttestationFormatHandler) RegistryOption {
	return func(r *FormatRegistry) {
		r.handlers[format] = handler
	}
}

// NewFormatRegistry returns a registry with the standard formats
// registered: none, fido-u2f, packed, android-key, tpm, and
// android-safetynet.
func NewFormatRegistry(opts ...RegistryOption) *FormatRegistry {
	r := &FormatRegistry{
		handlers: map[string]AttestationFormatHandler{
			"none":          verifyNoneAttestation,
			"fido-u2f":      verifyFidoU2FAttestation,
			"packed":        verifyPackedAttestation,
			"android-key":   verifyAndroidKeyAttestation,
			safetyNetFormat: verifySafetyNetWith(nil),
			tpmFormat:       verifyTPMAttestation,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AttestedCredential is the outcome of a successful attestation
// verification, ready to be persisted as a credential source.
type AttestedCredential struct {
	// ID is the authenticator-assigned credential identifier.
	ID []byte

	// PublicKey is the raw CBOR COSE public key.
	PublicKey []byte

	// AAGUID identifies the authenticator model.
	AAGUID []byte

	// SignCount is the signature counter at registration time.
	SignCount uint32

	// AttestationType classifies the verified statement.
	AttestationType string

	// Transports echoes the client's transport hints.
	Transports []AuthenticatorTransport
}

// AttestationExpectations carries the server-side state an attestation
// response is checked against.
type AttestationExpectations struct {
	// Challenge is the pending challenge issued with the creation
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

	// Algorithms restricts acceptable credential algorithms. Empty
	// means every algorithm the engine can verify.
	Algorithms []cose.Algorithm
}

// VerifyAttestation checks a parsed registration response against the
// expectations and, on success, returns the new credential. It never
// touches storage; duplicate credential ID checks belong to the
// caller.
func (r *FormatRegistry) VerifyAttestation(parsed *ParsedCredentialCreationData, exp AttestationExpectations) (*AttestedCredential, error) {
	if err := parsed.ClientData.Verify(CreateCeremony, exp.Challenge, exp.Origins, exp.SecuredRPIDs); err != nil {
		return nil, err
	}

	authData := &parsed.Attestation.AuthData
	rpIDHash := sha256.Sum256([]byte(exp.RPID))
	if !bytes.Equal(authData.RPIDHash, rpIDHash[:]) {
		return nil, verifyErr(ErrRpIdMismatch, "authData.rpIdHash",
			"hash does not match relying party ID %q", exp.RPID)
	}

	if !authData.Flags.UserPresent() {
		return nil, verifyErr(ErrUserNotPresent, "authData.flags", "UP bit clear")
	}
	if exp.RequireUserVerification && !authData.Flags.UserVerified() {
		return nil, verifyErr(ErrUserNotVerified, "authData.flags", "UV bit clear")
	}

	if !authData.Flags.HasAttestedCredentialData() {
		return nil, verifyErr(ErrMalformedResponse, "authData.flags",
			"AT bit clear on a registration response")
	}
	if len(authData.AttData.CredentialID) == 0 {
		return nil, verifyErr(ErrMalformedResponse, "authData", "empty credential ID")
	}
	if !bytes.Equal(parsed.ID, authData.AttData.CredentialID) {
		return nil, verifyErr(ErrMalformedResponse, "rawId",
			"envelope rawId does not match attested credential ID")
	}

	key, err := cose.ParsePublicKey(authData.AttData.PublicKey)
	if err != nil {
		return nil, err
	}
	if len(exp.Algorithms) > 0 && !algorithmAllowed(key.Algorithm, exp.Algorithms) {
		return nil, verifyErr(cose.ErrUnsupportedAlgorithm, "credentialPublicKey",
			"algorithm %s not in the advertised set", key.Algorithm)
	}

	handler, ok := r.handlers[parsed.Attestation.Format]
	if !ok {
		return nil, verifyErr(ErrUnsupportedAttestationFormat, "fmt",
			"%q", parsed.Attestation.Format)
	}

	clientDataHash := sha256.Sum256(parsed.RawClientData)
	attType, err := handler(&parsed.Attestation, clientDataHash[:])
	if err != nil {
		return nil, err
	}

	return &AttestedCredential{
		ID:              authData.AttData.CredentialID,
		PublicKey:       authData.AttData.PublicKey,
		AAGUID:          authData.AttData.AAGUID,
		SignCount:       authData.SignCount,
		AttestationType: attType,
		Transports:      parsed.Transports,
	}, nil
}

func algorithmAllowed(alg cose.Algorithm, allowed []cose.Algorithm) bool {
	for _, a := range allowed {
		if a == alg {
			return true
		}
	}
	return false
}

// verifyNoneAttestation accepts the "none" format, which carries an
// empty statement by definition.
func verifyNoneAttestation(obj *AttestationObject, _ []byte) (string, error) {
	var stmt map[string]cbor.RawMessage
	if len(obj.RawStatement) > 0 {
		if err := cbor.Unmarshal(obj.RawStatement, &stmt); err != nil {
			return "", verifyErr(ErrAttestationFormat, "attStmt", "none: invalid CBOR: %v", err)
		}
	}
	if len(stmt) != 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt",
			"none: statement must be empty, has %d entries", len(stmt))
	}
	return AttestationTypeNone, nil
}
