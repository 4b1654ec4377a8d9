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
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang-jwt/jwt/v5"
)

const safetyNetFormat = "android-safetynet"

// safetyNetHostname is the hostname the attestation certificate must
// be issued to.
const safetyNetHostname = "attest.android.com"

// SafetyNetClient verifies a SafetyNet JWS token against the remote
// Google API. The core engine performs structural verification only;
// a collaborator is injected when online verification is wanted.
type SafetyNetClient interface {
	// VerifyToken submits the raw JWS to the verification API and
	// returns an error when the API rejects it.
	VerifyToken(jws string) error
}

type safetyNetStatement struct {
	Ver      string `cbor:"ver"`
	Response []byte `cbor:"response"`
}

// verifySafetyNetWith builds the android-safetynet handler. The
// structural checks always run: JWS signature under a certificate
// issued to attest.android.com, nonce commitment to the ceremony
// data, and a passing CTS profile match. The optional client adds the
// remote API round trip.
func verifySafetyNetWith(client SafetyNetClient) AttestationFormatHandler {
	return func(obj *AttestationObject, clientDataHash []byte) (string, error) {
		var stmt safetyNetStatement
		if err := cbor.Unmarshal(obj.RawStatement, &stmt); err != nil {
			return "", verifyErr(ErrAttestationFormat, "attStmt",
				"android-safetynet: invalid CBOR: %v", err)
		}
		if stmt.Ver == "" {
			return "", verifyErr(ErrAttestationFormat, "attStmt.ver",
				"android-safetynet: missing")
		}
		if len(stmt.Response) == 0 {
			return "", verifyErr(ErrAttestationFormat, "attStmt.response",
				"android-safetynet: missing")
		}

		token, err := jwt.Parse(string(stmt.Response), safetyNetKeyfunc,
			jwt.WithValidMethods([]string{"RS256", "ES256"}))
		if err != nil {
			return "", verifyErr(ErrAttestationFormat, "attStmt.response",
				"android-safetynet: JWS verification failed: %v", err)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return "", verifyErr(ErrAttestationFormat, "attStmt.response",
				"android-safetynet: unexpected claims shape")
		}

		// nonce must commit to the ceremony data.
		nonce, _ := claims["nonce"].(string)
		hasher := sha256.New()
		hasher.Write(obj.RawAuthData)
		hasher.Write(clientDataHash)
		expected := base64.StdEncoding.EncodeToString(hasher.Sum(nil))
		if subtle.ConstantTimeCompare([]byte(nonce), []byte(expected)) != 1 {
			return "", verifyErr(ErrAttestationFormat, "attStmt.response",
				"android-safetynet: nonce does not match ceremony data")
		}

		if cts, ok := claims["ctsProfileMatch"].(bool); !ok || !cts {
			return "", verifyErr(ErrAttestationFormat, "attStmt.response",
				"android-safetynet: ctsProfileMatch is not true")
		}

		if client != nil {
			if err := client.VerifyToken(string(stmt.Response)); err != nil {
				return "", verifyErr(ErrAttestationFormat, "attStmt.response",
					"android-safetynet: remote verification failed: %v", err)
			}
		}
		return AttestationTypeBasic, nil
	}
}

// safetyNetKeyfunc extracts the attestation certificate from the JWS
// x5c header and returns its public key after checking the hostname.
func safetyNetKeyfunc(token *jwt.Token) (any, error) {
	x5c, ok := token.Header["x5c"].([]any)
	if !ok || len(x5c) == 0 {
		return nil, fmt.Errorf("missing x5c header")
	}
	leaf, ok := x5c[0].(string)
	if !ok {
		return nil, fmt.Errorf("x5c entry is not a string")
	}
	der, err := base64.StdEncoding.DecodeString(leaf)
	if err != nil {
		return nil, fmt.Errorf("invalid x5c base64: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("invalid attestation certificate: %v", err)
	}
	if err := cert.VerifyHostname(safetyNetHostname); err != nil {
		return nil, fmt.Errorf("certificate not issued to %s: %v", safetyNetHostname, err)
	}
	return cert.PublicKey, nil
}
