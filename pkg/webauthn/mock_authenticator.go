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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/protocol"
)

// MockAuthenticator simulates a WebAuthn authenticator for testing.
// It emits raw wire-format envelopes (JSON with embedded CBOR), so
// the full response loading and verification path is exercised.
type MockAuthenticator struct {
	// AAGUID is the authenticator's unique identifier (16 bytes).
	AAGUID []byte

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the current signature counter. Incremented before
	// each assertion unless AutoIncrement is false.
	SignCount uint32

	// AutoIncrement advances SignCount on each assertion. Disable it
	// to simulate a cloned authenticator replaying a stale counter.
	AutoIncrement bool

	// UserPresent controls the UP flag.
	UserPresent bool

	// UserVerified controls the UV flag.
	UserVerified bool

	// Format is the attestation format emitted during registration:
	// "none", "packed" (self attestation), or "fido-u2f".
	Format string

	privateKey *ecdsa.PrivateKey
	rpID       string
	rpIDHash   []byte
}

// MockAuthenticatorOption is a functional option for configuring a
// MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithAAGUID sets a custom AAGUID.
func WithAAGUID(aaguid []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.AAGUID = aaguid
	}
}

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithUserPresent sets the UP flag.
func WithUserPresent(up bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserPresent = up
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// WithFormat sets the attestation format emitted during registration.
func WithFormat(format string) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.Format = format
	}
}

// NewMockAuthenticator creates a new mock authenticator for testing.
// It holds a fresh ES256 key and emits "none" attestation by default.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}
	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))
	m := &MockAuthenticator{
		AAGUID:        aaguid,
		CredentialID:  credID,
		AutoIncrement: true,
		UserPresent:   true,
		Format:        "none",
		privateKey:    privateKey,
		rpID:          rpID,
		rpIDHash:      rpIDHash[:],
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type mockCOSEKey struct {
	KeyType   int64  `cbor:"1,keyasint"`
	Algorithm int64  `cbor:"3,keyasint"`
	Curve     int64  `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
	Y         []byte `cbor:"-3,keyasint"`
}

// cosePublicKey encodes the authenticator key as an ES256 COSE key.
func (m *MockAuthenticator) cosePublicKey() ([]byte, error) {
	x := make([]byte, 32)
	y := make([]byte, 32)
	m.privateKey.X.FillBytes(x)
	m.privateKey.Y.FillBytes(y)
	return cbor.Marshal(mockCOSEKey{
		KeyType:   2,  // EC2
		Algorithm: -7, // ES256
		Curve:     1,  // P-256
		X:         x,
		Y:         y,
	})
}

func (m *MockAuthenticator) flags(attestedData bool) byte {
	var f byte
	if m.UserPresent {
		f |= byte(protocol.FlagUserPresent)
	}
	if m.UserVerified {
		f |= byte(protocol.FlagUserVerified)
	}
	if attestedData {
		f |= byte(protocol.FlagAttestedCredentialData)
	}
	return f
}

// registrationAuthData builds the authenticator data for a
// registration: header plus attested credential data.
func (m *MockAuthenticator) registrationAuthData() ([]byte, error) {
	coseKey, err := m.cosePublicKey()
	if err != nil {
		return nil, err
	}

	authData := make([]byte, 0, 37+16+2+len(m.CredentialID)+len(coseKey))
	authData = append(authData, m.rpIDHash...)
	authData = append(authData, m.flags(true))
	authData = binary.BigEndian.AppendUint32(authData, m.SignCount)
	authData = append(authData, m.AAGUID...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(m.CredentialID)))
	authData = append(authData, m.CredentialID...)
	authData = append(authData, coseKey...)
	return authData, nil
}

func (m *MockAuthenticator) clientData(ceremony, challenge, origin string) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:      ceremony,
		Challenge: challenge,
		Origin:    origin,
	})
}

func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, m.privateKey, digest[:])
}

// CreateResponse produces the raw registration response envelope for
// the given creation options, as the browser would return it from
// navigator.credentials.create.
func (m *MockAuthenticator) CreateResponse(opts *protocol.CredentialCreationOptions, origin string) ([]byte, error) {
	clientDataJSON, err := m.clientData(protocol.CreateCeremony, opts.Challenge.String(), origin)
	if err != nil {
		return nil, err
	}
	clientDataHash := sha256.Sum256(clientDataJSON)

	authData, err := m.registrationAuthData()
	if err != nil {
		return nil, err
	}

	attStmt, err := m.attestationStatement(authData, clientDataHash[:])
	if err != nil {
		return nil, err
	}

	attObj, err := cbor.Marshal(map[string]any{
		"authData": authData,
		"fmt":      m.Format,
		"attStmt":  attStmt,
	})
	if err != nil {
		return nil, err
	}

	envelope := protocol.CredentialCreationResponse{
		ID:    protocol.URLEncodedBase64(m.CredentialID).String(),
		RawID: m.CredentialID,
		Type:  string(protocol.PublicKeyCredentialType),
		Response: protocol.AuthenticatorAttestationReply{
			ClientDataJSON:    clientDataJSON,
			AttestationObject: attObj,
			Transports:        []protocol.AuthenticatorTransport{protocol.TransportUSB},
		},
	}
	return json.Marshal(envelope)
}

// attestationStatement builds the attStmt for the configured format.
func (m *MockAuthenticator) attestationStatement(authData, clientDataHash []byte) (any, error) {
	switch m.Format {
	case "none":
		return map[string]any{}, nil

	case "packed":
		// Self attestation: the credential key signs its own creation.
		signed := make([]byte, 0, len(authData)+len(clientDataHash))
		signed = append(signed, authData...)
		signed = append(signed, clientDataHash...)
		sig, err := m.sign(signed)
		if err != nil {
			return nil, err
		}
		return map[string]any{"alg": int64(-7), "sig": sig}, nil

	case "fido-u2f":
		certDER, err := m.attestationCertificate()
		if err != nil {
			return nil, err
		}
		pubU2F := elliptic.Marshal(elliptic.P256(), m.privateKey.X, m.privateKey.Y)
		verificationData := make([]byte, 0, 1+len(m.rpIDHash)+len(clientDataHash)+len(m.CredentialID)+len(pubU2F))
		verificationData = append(verificationData, 0x00)
		verificationData = append(verificationData, m.rpIDHash...)
		verificationData = append(verificationData, clientDataHash...)
		verificationData = append(verificationData, m.CredentialID...)
		verificationData = append(verificationData, pubU2F...)
		sig, err := m.sign(verificationData)
		if err != nil {
			return nil, err
		}
		return map[string]any{"x5c": []any{certDER}, "sig": sig}, nil

	default:
		return nil, fmt.Errorf("mock authenticator: unsupported format %q", m.Format)
	}
}

// attestationCertificate self-signs a certificate over the
// authenticator key for fido-u2f statements.
func (m *MockAuthenticator) attestationCertificate() ([]byte, error) {
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:         "Mock U2F Authenticator",
			Organization:       []string{"go-mfa-webauthn"},
			OrganizationalUnit: []string{"Authenticator Attestation"},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
	}
	return x509.CreateCertificate(rand.Reader, template, template, &m.privateKey.PublicKey, m.privateKey)
}

// GetResponse produces the raw authentication response envelope for
// the given request options, as the browser would return it from
// navigator.credentials.get.
func (m *MockAuthenticator) GetResponse(opts *protocol.CredentialRequestOptions, origin string) ([]byte, error) {
	if m.AutoIncrement {
		m.SignCount++
	}

	clientDataJSON, err := m.clientData(protocol.GetCeremony, opts.Challenge.String(), origin)
	if err != nil {
		return nil, err
	}
	clientDataHash := sha256.Sum256(clientDataJSON)

	authData := make([]byte, 0, 37)
	authData = append(authData, m.rpIDHash...)
	authData = append(authData, m.flags(false))
	authData = binary.BigEndian.AppendUint32(authData, m.SignCount)

	signed := make([]byte, 0, len(authData)+len(clientDataHash))
	signed = append(signed, authData...)
	signed = append(signed, clientDataHash[:]...)
	sig, err := m.sign(signed)
	if err != nil {
		return nil, err
	}

	envelope := protocol.CredentialAssertionResponse{
		ID:    protocol.URLEncodedBase64(m.CredentialID).String(),
		RawID: m.CredentialID,
		Type:  string(protocol.PublicKeyCredentialType),
		Response: protocol.AuthenticatorAssertionReply{
			ClientDataJSON:    clientDataJSON,
			AuthenticatorData: authData,
			Signature:         sig,
		},
	}
	return json.Marshal(envelope)
}

// GetResponseWithUserHandle is GetResponse with an explicit
// userHandle field in the reply.
func (m *MockAuthenticator) GetResponseWithUserHandle(opts *protocol.CredentialRequestOptions, origin string, userHandle []byte) ([]byte, error) {
	raw, err := m.GetResponse(opts, origin)
	if err != nil {
		return nil, err
	}
	var envelope protocol.CredentialAssertionResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	envelope.Response.UserHandle = userHandle
	return json.Marshal(envelope)
}
