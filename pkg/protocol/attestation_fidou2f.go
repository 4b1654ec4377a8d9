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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

type fidoU2FStatement struct {
	X5C [][]byte `cbor:"x5c"`
	Sig []byte   `cbor:"sig"`
}

// verifyFidoU2FAttestation verifies a legacy U2F attestation
// statement. The signature covers the U2F registration data layout
// reconstructed from the WebAuthn fields:
//
//	0x00 || rpIdHash || clientDataHash || credentialId || publicKeyU2F
//
// where publicKeyU2F is the uncompressed P-256 point of the credential
// key.
func verifyFidoU2FAttestation(obj *AttestationObject, clientDataHash []byte) (string, error) {
	var stmt fidoU2FStatement
	if err := cbor.Unmarshal(obj.RawStatement, &stmt); err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt", "fido-u2f: invalid CBOR: %v", err)
	}
	if len(stmt.X5C) != 1 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"fido-u2f: expected exactly one certificate, have %d", len(stmt.X5C))
	}
	if len(stmt.Sig) == 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.sig", "fido-u2f: missing")
	}

	cert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"fido-u2f: invalid certificate: %v", err)
	}
	certKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || certKey.Curve != elliptic.P256() {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"fido-u2f: attestation certificate key must be ECDSA P-256")
	}

	credKey, err := cose.ParsePublicKey(obj.AuthData.AttData.PublicKey)
	if err != nil {
		return "", err
	}
	ecKey, ok := credKey.Key.(*ecdsa.PublicKey)
	if !ok || ecKey.Curve != elliptic.P256() {
		return "", verifyErr(ErrAttestationFormat, "credentialPublicKey",
			"fido-u2f: credential key must be ECDSA P-256")
	}
	publicKeyU2F := elliptic.Marshal(elliptic.P256(), ecKey.X, ecKey.Y)

	verificationData := make([]byte, 0, 1+32+len(clientDataHash)+len(obj.AuthData.AttData.CredentialID)+len(publicKeyU2F))
	verificationData = append(verificationData, 0x00)
	verificationData = append(verificationData, obj.AuthData.RPIDHash...)
	verificationData = append(verificationData, clientDataHash...)
	verificationData = append(verificationData, obj.AuthData.AttData.CredentialID...)
	verificationData = append(verificationData, publicKeyU2F...)

	attKey := &cose.PublicKey{Algorithm: cose.ES256, Key: certKey}
	if err := attKey.Verify(verificationData, stmt.Sig); err != nil {
		return "", verifyErr(ErrSignatureInvalid, "attStmt.sig", "fido-u2f: %v", err)
	}
	return AttestationTypeBasic, nil
}
