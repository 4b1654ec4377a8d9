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
	"encoding/json"
	"io"
)

// CredentialCreationResponse is the JSON envelope the client returns
// from navigator.credentials.create.
type CredentialCreationResponse struct {
	ID       string                        `json:"id"`
	RawID    URLEncodedBase64              `json:"rawId"`
	Type     string                        `json:"type"`
	Response AuthenticatorAttestationReply `json:"response"`
}

// AuthenticatorAttestationReply holds the registration response
// payloads.
type AuthenticatorAttestationReply struct {
	ClientDataJSON    URLEncodedBase64         `json:"clientDataJSON"`
	AttestationObject URLEncodedBase64         `json:"attestationObject"`
	Transports        []AuthenticatorTransport `json:"transports,omitempty"`
}

// ParsedCredentialCreationData is a fully decoded registration
// response, ready for attestation verification.
type ParsedCredentialCreationData struct {
	ID         []byte
	ClientData CollectedClientData

	// RawClientData is the exact clientDataJSON bytes; its SHA-256 is
	// the client data hash signed over by the authenticator.
	RawClientData []byte

	Attestation AttestationObject
	Transports  []AuthenticatorTransport
}

// ParseCredentialCreationResponse reads and parses a registration
// response envelope from r.
func ParseCredentialCreationResponse(r io.Reader) (*ParsedCredentialCreationData, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, verifyErr(ErrMalformedResponse, "body", "reading response: %v", err)
	}
	return ParseCredentialCreationResponseBody(body)
}

// ParseCredentialCreationResponseBody parses a registration response
// envelope from raw JSON.
func ParseCredentialCreationResponseBody(body []byte) (*ParsedCredentialCreationData, error) {
	var ccr CredentialCreationResponse
	if err := strictUnmarshal(body, &ccr); err != nil {
		return nil, err
	}
	if err := checkEnvelope(ccr.Type, ccr.RawID); err != nil {
		return nil, err
	}
	if len(ccr.Response.ClientDataJSON) == 0 {
		return nil, verifyErr(ErrMalformedResponse, "response.clientDataJSON", "missing")
	}
	if len(ccr.Response.AttestationObject) == 0 {
		return nil, verifyErr(ErrMalformedResponse, "response.attestationObject",
			"missing; not a registration response")
	}

	parsed := &ParsedCredentialCreationData{
		ID:            ccr.RawID,
		RawClientData: ccr.Response.ClientDataJSON,
		Transports:    ccr.Response.Transports,
	}
	if err := json.Unmarshal(ccr.Response.ClientDataJSON, &parsed.ClientData); err != nil {
		return nil, verifyErr(ErrMalformedResponse, "response.clientDataJSON", "invalid JSON: %v", err)
	}
	if err := parsed.Attestation.Unmarshal(ccr.Response.AttestationObject); err != nil {
		return nil, err
	}
	return parsed, nil
}

// CredentialAssertionResponse is the JSON envelope the client returns
// from navigator.credentials.get.
type CredentialAssertionResponse struct {
	ID       string                      `json:"id"`
	RawID    URLEncodedBase64            `json:"rawId"`
	Type     string                      `json:"type"`
	Response AuthenticatorAssertionReply `json:"response"`
}

// AuthenticatorAssertionReply holds the authentication response
// payloads.
type AuthenticatorAssertionReply struct {
	ClientDataJSON    URLEncodedBase64 `json:"clientDataJSON"`
	AuthenticatorData URLEncodedBase64 `json:"authenticatorData"`
	Signature         URLEncodedBase64 `json:"signature"`
	UserHandle        URLEncodedBase64 `json:"userHandle,omitempty"`
}

// ParsedCredentialAssertionData is a fully decoded authentication
// response, ready for assertion verification.
type ParsedCredentialAssertionData struct {
	ID         []byte
	ClientData CollectedClientData

	// RawClientData is the exact clientDataJSON bytes.
	RawClientData []byte

	AuthData AuthenticatorData

	// RawAuthData is the exact authenticator data bytes the signature
	// covers.
	RawAuthData []byte

	Signature  []byte
	UserHandle []byte
}

// ParseCredentialAssertionResponse reads and parses an authentication
// response envelope from r.
func ParseCredentialAssertionResponse(r io.Reader) (*ParsedCredentialAssertionData, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, verifyErr(ErrMalformedResponse, "body", "reading response: %v", err)
	}
	return ParseCredentialAssertionResponseBody(body)
}

// ParseCredentialAssertionResponseBody parses an authentication
// response envelope from raw JSON.
func ParseCredentialAssertionResponseBody(body []byte) (*ParsedCredentialAssertionData, error) {
	var car CredentialAssertionResponse
	if err := strictUnmarshal(body, &car); err != nil {
		return nil, err
	}
	if err := checkEnvelope(car.Type, car.RawID); err != nil {
		return nil, err
	}
	if len(car.Response.ClientDataJSON) == 0 {
		return nil, verifyErr(ErrMalformedResponse, "response.clientDataJSON", "missing")
	}
	if len(car.Response.AuthenticatorData) == 0 {
		return nil, verifyErr(ErrMalformedResponse, "response.authenticatorData",
			"missing; not an authentication response")
	}
	if len(car.Response.Signature) == 0 {
		return nil, verifyErr(ErrMalformedResponse, "response.signature", "missing")
	}

	parsed := &ParsedCredentialAssertionData{
		ID:            car.RawID,
		RawClientData: car.Response.ClientDataJSON,
		RawAuthData:   car.Response.AuthenticatorData,
		Signature:     car.Response.Signature,
		UserHandle:    car.Response.UserHandle,
	}
	if err := json.Unmarshal(car.Response.ClientDataJSON, &parsed.ClientData); err != nil {
		return nil, verifyErr(ErrMalformedResponse, "response.clientDataJSON", "invalid JSON: %v", err)
	}
	if err := parsed.AuthData.Unmarshal(car.Response.AuthenticatorData); err != nil {
		return nil, err
	}
	return parsed, nil
}

func strictUnmarshal(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return verifyErr(ErrMalformedResponse, "body", "invalid JSON: %v", err)
	}
	// A second document after the envelope is an attack surface, not a
	// formatting quirk.
	if dec.More() {
		return verifyErr(ErrMalformedResponse, "body", "trailing data after JSON envelope")
	}
	return nil
}

func checkEnvelope(credType string, rawID []byte) error {
	if credType != string(PublicKeyCredentialType) {
		return verifyErr(ErrMalformedResponse, "type",
			"got %q, want %q", credType, PublicKeyCredentialType)
	}
	if len(rawID) == 0 {
		return verifyErr(ErrMalformedResponse, "rawId", "missing")
	}
	return nil
}
