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
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientDataJSON(t *testing.T, ceremony string) []byte {
	t.Helper()
	data, err := json.Marshal(CollectedClientData{
		Type:      ceremony,
		Challenge: "c29tZS1jaGFsbGVuZ2U",
		Origin:    "https://example.com",
	})
	require.NoError(t, err)
	return data
}

func creationEnvelope(t *testing.T) []byte {
	t.Helper()
	credID := []byte("cred-id")
	attObj, err := cbor.Marshal(attestationObjectWire{
		AuthData: buildAuthData(t, FlagUserPresent|FlagAttestedCredentialData, 0,
			buildAttestedData(t, credID)),
		Format:       "none",
		RawStatement: mustCBOR(t, map[string]any{}),
	})
	require.NoError(t, err)

	body, err := json.Marshal(CredentialCreationResponse{
		ID:    URLEncodedBase64(credID).String(),
		RawID: credID,
		Type:  string(PublicKeyCredentialType),
		Response: AuthenticatorAttestationReply{
			ClientDataJSON:    clientDataJSON(t, CreateCeremony),
			AttestationObject: attObj,
			Transports:        []AuthenticatorTransport{TransportUSB},
		},
	})
	require.NoError(t, err)
	return body
}

func assertionEnvelope(t *testing.T) []byte {
	t.Helper()
	credID := []byte("cred-id")
	body, err := json.Marshal(CredentialAssertionResponse{
		ID:    URLEncodedBase64(credID).String(),
		RawID: credID,
		Type:  string(PublicKeyCredentialType),
		Response: AuthenticatorAssertionReply{
			ClientDataJSON:    clientDataJSON(t, GetCeremony),
			AuthenticatorData: buildAuthData(t, FlagUserPresent, 9, nil),
			Signature:         []byte("signature-bytes"),
			UserHandle:        []byte("BE:12"),
		},
	})
	require.NoError(t, err)
	return body
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestParseCredentialCreationResponseBody(t *testing.T) {
	parsed, err := ParseCredentialCreationResponseBody(creationEnvelope(t))
	require.NoError(t, err)

	assert.Equal(t, []byte("cred-id"), parsed.ID)
	assert.Equal(t, CreateCeremony, parsed.ClientData.Type)
	assert.Equal(t, "https://example.com", parsed.ClientData.Origin)
	assert.Equal(t, "none", parsed.Attestation.Format)
	assert.Equal(t, []byte("cred-id"), parsed.Attestation.AuthData.AttData.CredentialID)
	assert.Equal(t, []AuthenticatorTransport{TransportUSB}, parsed.Transports)
}

func TestParseCredentialCreationResponse_Reader(t *testing.T) {
	parsed, err := ParseCredentialCreationResponse(bytes.NewReader(creationEnvelope(t)))
	require.NoError(t, err)
	assert.Equal(t, []byte("cred-id"), parsed.ID)
}

func TestParseCredentialCreationResponseBody_Rejects(t *testing.T) {
	mutate := func(t *testing.T, f func(*CredentialCreationResponse)) []byte {
		t.Helper()
		var ccr CredentialCreationResponse
		require.NoError(t, json.Unmarshal(creationEnvelope(t), &ccr))
		f(&ccr)
		body, err := json.Marshal(ccr)
		require.NoError(t, err)
		return body
	}

	tests := []struct {
		name string
		body []byte
	}{
		{"invalid JSON", []byte(`{`)},
		{"trailing document", append(creationEnvelope(t), []byte(`{"x":1}`)...)},
		{"wrong type", mutate(t, func(c *CredentialCreationResponse) { c.Type = "password" })},
		{"missing rawId", mutate(t, func(c *CredentialCreationResponse) { c.RawID = nil })},
		{"missing clientDataJSON", mutate(t, func(c *CredentialCreationResponse) {
			c.Response.ClientDataJSON = nil
		})},
		{"missing attestationObject", mutate(t, func(c *CredentialCreationResponse) {
			c.Response.AttestationObject = nil
		})},
		{"attestation object trailing bytes", mutate(t, func(c *CredentialCreationResponse) {
			c.Response.AttestationObject = append(c.Response.AttestationObject, 0x00)
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentialCreationResponseBody(tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestParseCredentialAssertionResponseBody(t *testing.T) {
	parsed, err := ParseCredentialAssertionResponseBody(assertionEnvelope(t))
	require.NoError(t, err)

	assert.Equal(t, []byte("cred-id"), parsed.ID)
	assert.Equal(t, GetCeremony, parsed.ClientData.Type)
	assert.Equal(t, uint32(9), parsed.AuthData.SignCount)
	assert.Equal(t, []byte("signature-bytes"), parsed.Signature)
	assert.Equal(t, []byte("BE:12"), parsed.UserHandle)

	// Raw bytes are preserved for signature verification
	assert.Equal(t, clientDataJSON(t, GetCeremony), parsed.RawClientData)
	assert.Equal(t, buildAuthData(t, FlagUserPresent, 9, nil), parsed.RawAuthData)
}

func TestParseCredentialAssertionResponseBody_Rejects(t *testing.T) {
	mutate := func(t *testing.T, f func(*CredentialAssertionResponse)) []byte {
		t.Helper()
		var car CredentialAssertionResponse
		require.NoError(t, json.Unmarshal(assertionEnvelope(t), &car))
		f(&car)
		body, err := json.Marshal(car)
		require.NoError(t, err)
		return body
	}

	tests := []struct {
		name string
		body []byte
	}{
		{"invalid JSON", []byte(`not json`)},
		{"trailing document", append(assertionEnvelope(t), '0')},
		{"wrong type", mutate(t, func(c *CredentialAssertionResponse) { c.Type = "public-key2" })},
		{"missing rawId", mutate(t, func(c *CredentialAssertionResponse) { c.RawID = nil })},
		{"missing clientDataJSON", mutate(t, func(c *CredentialAssertionResponse) {
			c.Response.ClientDataJSON = nil
		})},
		{"missing authenticatorData", mutate(t, func(c *CredentialAssertionResponse) {
			c.Response.AuthenticatorData = nil
		})},
		{"missing signature", mutate(t, func(c *CredentialAssertionResponse) {
			c.Response.Signature = nil
		})},
		{"truncated authenticatorData", mutate(t, func(c *CredentialAssertionResponse) {
			c.Response.AuthenticatorData = c.Response.AuthenticatorData[:10]
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentialAssertionResponseBody(tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}
