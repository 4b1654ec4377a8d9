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
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
)

// AuthenticatorFlags is the flags byte of authenticator data.
type AuthenticatorFlags byte

// Authenticator data flag bits.
const (
	// FlagUserPresent indicates a user presence test succeeded.
	FlagUserPresent AuthenticatorFlags = 0x01

	// FlagUserVerified indicates user verification succeeded.
	FlagUserVerified AuthenticatorFlags = 0x04

	// FlagAttestedCredentialData indicates attested credential data
	// follows the counter.
	FlagAttestedCredentialData AuthenticatorFlags = 0x40

	// FlagHasExtensions indicates an extension map follows.
	FlagHasExtensions AuthenticatorFlags = 0x80
)

// UserPresent reports whether the UP bit is set.
func (f AuthenticatorFlags) UserPresent() bool { return f&FlagUserPresent != 0 }

// UserVerified reports whether the UV bit is set.
func (f AuthenticatorFlags) UserVerified() bool { return f&FlagUserVerified != 0 }

// HasAttestedCredentialData reports whether the AT bit is set.
func (f AuthenticatorFlags) HasAttestedCredentialData() bool {
	return f&FlagAttestedCredentialData != 0
}

// HasExtensions reports whether the ED bit is set.
func (f AuthenticatorFlags) HasExtensions() bool { return f&FlagHasExtensions != 0 }

// AttestedCredentialData carries the new credential emitted during
// registration.
type AttestedCredentialData struct {
	// AAGUID identifies the authenticator model, 16 bytes.
	AAGUID []byte

	// CredentialID is the authenticator-assigned credential identifier.
	CredentialID []byte

	// PublicKey is the raw CBOR COSE public key.
	PublicKey []byte
}

// AuthenticatorData is the parsed binary authenticator data structure:
// rpIdHash (32) || flags (1) || signCount (4, big-endian) ||
// [attested credential data] || [extensions].
type AuthenticatorData struct {
	RPIDHash  []byte
	Flags     AuthenticatorFlags
	SignCount uint32
	AttData   AttestedCredentialData

	// Extensions is the raw CBOR extension map, if present.
	Extensions []byte
}

const minAuthDataLength = 37

// Unmarshal parses authenticator data from its binary encoding.
// Truncated input and unexplained trailing bytes are both rejected.
func (a *AuthenticatorData) Unmarshal(data []byte) error {
	if len(data) < minAuthDataLength {
		return verifyErr(ErrMalformedResponse, "authData",
			"expected at least %d bytes, have %d", minAuthDataLength, len(data))
	}

	a.RPIDHash = data[:32]
	a.Flags = AuthenticatorFlags(data[32])
	a.SignCount = binary.BigEndian.Uint32(data[33:37])

	rest := data[37:]
	if a.Flags.HasAttestedCredentialData() {
		var err error
		rest, err = a.unmarshalAttestedData(rest)
		if err != nil {
			return err
		}
	} else if len(rest) != 0 && !a.Flags.HasExtensions() {
		return verifyErr(ErrMalformedResponse, "authData",
			"%d trailing bytes with AT and ED flags clear", len(rest))
	}

	if a.Flags.HasExtensions() {
		if len(rest) == 0 {
			return verifyErr(ErrMalformedResponse, "authData",
				"ED flag set but no extension data present")
		}
		var ext any
		remaining, err := cbor.UnmarshalFirst(rest, &ext)
		if err != nil {
			return verifyErr(ErrMalformedResponse, "authData",
				"invalid extension CBOR: %v", err)
		}
		if len(remaining) != 0 {
			return verifyErr(ErrMalformedResponse, "authData",
				"%d trailing bytes after extensions", len(remaining))
		}
		a.Extensions = rest
	}

	return nil
}

// unmarshalAttestedData parses AAGUID || credIdLen || credId || COSE
// key and returns the bytes following the variable-length COSE key.
func (a *AuthenticatorData) unmarshalAttestedData(data []byte) ([]byte, error) {
	if len(data) < 18 {
		return nil, verifyErr(ErrMalformedResponse, "authData",
			"attested credential data truncated at %d bytes", len(data))
	}
	a.AttData.AAGUID = data[:16]
	idLen := int(binary.BigEndian.Uint16(data[16:18]))
	if len(data) < 18+idLen {
		return nil, verifyErr(ErrMalformedResponse, "authData",
			"credential ID truncated: need %d bytes, have %d", idLen, len(data)-18)
	}
	a.AttData.CredentialID = data[18 : 18+idLen]

	// The COSE key is variable-length CBOR; decode one item to find
	// where it ends.
	keyBytes := data[18+idLen:]
	var raw cbor.RawMessage
	rest, err := cbor.UnmarshalFirst(keyBytes, &raw)
	if err != nil {
		return nil, verifyErr(ErrMalformedResponse, "authData",
			"invalid COSE key CBOR: %v", err)
	}
	a.AttData.PublicKey = keyBytes[:len(keyBytes)-len(rest)]

	if len(rest) != 0 && !a.Flags.HasExtensions() {
		return nil, verifyErr(ErrMalformedResponse, "authData",
			"%d trailing bytes after COSE key with ED flag clear", len(rest))
	}
	return rest, nil
}
