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
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

// Android Keystore attestation extension OID.
var oidAndroidKeystore = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// Keymaster constants referenced by the verification procedure.
const (
	kmOriginGenerated = 0
	kmPurposeSign     = 2

	// AuthorizationList context tag numbers.
	kmTagPurpose         = 1
	kmTagOrigin          = 702
	kmTagAllApplications = 600
)

type androidKeyStatement struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// keyDescription is the Android Keystore attestation extension body.
type keyDescription struct {
	attestationChallenge []byte
	softwareEnforced     authorizationList
	teeEnforced          authorizationList
}

type authorizationList struct {
	purpose         []int64
	origin          *int64
	allApplications bool
}

// verifyAndroidKeyAttestation verifies an android-key attestation
// statement: the leaf certificate key signed authData||clientDataHash,
// holds the same key as the credential, and its Keystore extension
// proves the key was generated on-device for signing during this
// ceremony.
func verifyAndroidKeyAttestation(obj *AttestationObject, clientDataHash []byte) (string, error) {
	var stmt androidKeyStatement
	if err := cbor.Unmarshal(obj.RawStatement, &stmt); err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt", "android-key: invalid CBOR: %v", err)
	}
	if len(stmt.Sig) == 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.sig", "android-key: missing")
	}
	if len(stmt.X5C) == 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c", "android-key: missing")
	}

	cert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: invalid certificate: %v", err)
	}

	signed := make([]byte, 0, len(obj.RawAuthData)+len(clientDataHash))
	signed = append(signed, obj.RawAuthData...)
	signed = append(signed, clientDataHash...)
	attKey := &cose.PublicKey{Algorithm: cose.Algorithm(stmt.Alg), Key: cert.PublicKey}
	if err := attKey.Verify(signed, stmt.Sig); err != nil {
		return "", verifyErr(ErrSignatureInvalid, "attStmt.sig", "android-key: %v", err)
	}

	// The certificate must certify the credential key itself.
	credKey, err := cose.ParsePublicKey(obj.AuthData.AttData.PublicKey)
	if err != nil {
		return "", err
	}
	if !publicKeysEqual(cert.PublicKey, credKey.Key) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: certificate key does not match credential key")
	}

	var extValue []byte
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidAndroidKeystore) {
			extValue = ext.Value
			break
		}
	}
	if extValue == nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: certificate lacks the Keystore attestation extension")
	}

	desc, err := parseKeyDescription(extValue)
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c", "android-key: %v", err)
	}

	if !bytes.Equal(desc.attestationChallenge, clientDataHash) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: attestation challenge does not match client data hash")
	}
	if desc.softwareEnforced.allApplications || desc.teeEnforced.allApplications {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: key is not scoped to the RP application")
	}
	if !originGenerated(desc.softwareEnforced) && !originGenerated(desc.teeEnforced) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: key origin is not KM_ORIGIN_GENERATED")
	}
	if !purposeContainsSign(desc.softwareEnforced) && !purposeContainsSign(desc.teeEnforced) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"android-key: key purpose does not include KM_PURPOSE_SIGN")
	}

	return AttestationTypeBasic, nil
}

func originGenerated(l authorizationList) bool {
	return l.origin != nil && *l.origin == kmOriginGenerated
}

func purposeContainsSign(l authorizationList) bool {
	for _, p := range l.purpose {
		if p == kmPurposeSign {
			return true
		}
	}
	return false
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}
	if ek, ok := a.(equaler); ok {
		return ek.Equal(b)
	}
	return false
}

// parseKeyDescription decodes the KeyDescription SEQUENCE. The outer
// fields carry universal tags; the two AuthorizationList members use
// context tags up to [702], which need high-tag-number handling.
func parseKeyDescription(der []byte) (*keyDescription, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("malformed KeyDescription")
	}

	var desc keyDescription
	var version, keymasterVersion int64
	var secLevel, kmSecLevel int
	var uniqueID []byte
	var softwareEnforced, teeEnforced cryptobyte.String
	if !seq.ReadASN1Integer(&version) ||
		!seq.ReadASN1Enum(&secLevel) ||
		!seq.ReadASN1Integer(&keymasterVersion) ||
		!seq.ReadASN1Enum(&kmSecLevel) ||
		!seq.ReadASN1Bytes(&desc.attestationChallenge, cbasn1.OCTET_STRING) ||
		!seq.ReadASN1Bytes(&uniqueID, cbasn1.OCTET_STRING) ||
		!seq.ReadASN1(&softwareEnforced, cbasn1.SEQUENCE) ||
		!seq.ReadASN1(&teeEnforced, cbasn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed KeyDescription fields")
	}

	var err error
	if desc.softwareEnforced, err = parseAuthorizationList(softwareEnforced); err != nil {
		return nil, fmt.Errorf("softwareEnforced: %w", err)
	}
	if desc.teeEnforced, err = parseAuthorizationList(teeEnforced); err != nil {
		return nil, fmt.Errorf("teeEnforced: %w", err)
	}
	return &desc, nil
}

// parseAuthorizationList walks the context-tagged optional members of
// an AuthorizationList, keeping only the tags the verification
// procedure consults. Tag numbers above 30 use the ASN.1 high-tag
// form, which is decoded by hand.
func parseAuthorizationList(list cryptobyte.String) (authorizationList, error) {
	var out authorizationList
	raw := []byte(list)
	for len(raw) > 0 {
		tagNum, content, rest, err := readContextElement(raw)
		if err != nil {
			return out, err
		}
		raw = rest

		switch tagNum {
		case kmTagPurpose:
			// [1] EXPLICIT SET OF INTEGER
			inner := cryptobyte.String(content)
			var set cryptobyte.String
			if !inner.ReadASN1(&set, cbasn1.SET) {
				return out, fmt.Errorf("malformed purpose set")
			}
			for !set.Empty() {
				var p int64
				if !set.ReadASN1Integer(&p) {
					return out, fmt.Errorf("malformed purpose entry")
				}
				out.purpose = append(out.purpose, p)
			}
		case kmTagOrigin:
			// [702] EXPLICIT INTEGER
			inner := cryptobyte.String(content)
			var o int64
			if !inner.ReadASN1Integer(&o) {
				return out, fmt.Errorf("malformed origin")
			}
			out.origin = &o
		case kmTagAllApplications:
			// [600] EXPLICIT NULL; presence is all that matters.
			out.allApplications = true
		}
	}
	return out, nil
}

// readContextElement reads one DER element with a context-specific
// tag, supporting the high-tag-number form, and returns the tag
// number, content bytes, and remaining input.
func readContextElement(raw []byte) (tagNum int, content, rest []byte, err error) {
	if len(raw) < 2 {
		return 0, nil, nil, fmt.Errorf("truncated element")
	}
	b := raw[0]
	if b&0xc0 != 0x80 {
		return 0, nil, nil, fmt.Errorf("expected context-specific tag, got 0x%02x", b)
	}
	idx := 1
	if b&0x1f != 0x1f {
		tagNum = int(b & 0x1f)
	} else {
		// High-tag-number form: base-128 continuation bytes.
		for {
			if idx >= len(raw) {
				return 0, nil, nil, fmt.Errorf("truncated high tag number")
			}
			c := raw[idx]
			idx++
			tagNum = tagNum<<7 | int(c&0x7f)
			if c&0x80 == 0 {
				break
			}
			if tagNum > 1<<16 {
				return 0, nil, nil, fmt.Errorf("tag number too large")
			}
		}
	}

	if idx >= len(raw) {
		return 0, nil, nil, fmt.Errorf("truncated length")
	}
	lenByte := raw[idx]
	idx++
	var length int
	if lenByte&0x80 == 0 {
		length = int(lenByte)
	} else {
		numBytes := int(lenByte & 0x7f)
		if numBytes == 0 || numBytes > 4 || idx+numBytes > len(raw) {
			return 0, nil, nil, fmt.Errorf("invalid DER length")
		}
		for i := 0; i < numBytes; i++ {
			length = length<<8 | int(raw[idx+i])
		}
		idx += numBytes
	}
	if length < 0 || idx+length > len(raw) {
		return 0, nil, nil, fmt.Errorf("element overruns input")
	}
	return tagNum, raw[idx : idx+length], raw[idx+length:], nil
}
