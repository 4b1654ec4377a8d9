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
	"crypto/x509"
	"encoding/asn1"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

// id-fido-gen-ce-aaguid, the certificate extension carrying the
// authenticator AAGUID.
var oidFidoGenCeAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type packedStatement struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// verifyPackedAttestation verifies a packed attestation statement in
// either its x5c (Basic) or self-attestation form. ECDAA is obsolete
// and rejected.
func verifyPackedAttestation(obj *AttestationObject, clientDataHash []byte) (string, error) {
	var stmt packedStatement
	if err := cbor.Unmarshal(obj.RawStatement, &stmt); err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt", "packed: invalid CBOR: %v", err)
	}
	if len(stmt.Sig) == 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.sig", "packed: missing")
	}

	signed := make([]byte, 0, len(obj.RawAuthData)+len(clientDataHash))
	signed = append(signed, obj.RawAuthData...)
	signed = append(signed, clientDataHash...)

	if len(stmt.X5C) > 0 {
		return verifyPackedX5C(obj, &stmt, signed)
	}
	return verifyPackedSelf(obj, &stmt, signed)
}

func verifyPackedX5C(obj *AttestationObject, stmt *packedStatement, signed []byte) (string, error) {
	cert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"packed: invalid attestation certificate: %v", err)
	}

	if cert.Version != 3 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"packed: certificate version must be 3, is %d", cert.Version)
	}
	if len(cert.Subject.OrganizationalUnit) == 0 ||
		cert.Subject.OrganizationalUnit[0] != "Authenticator Attestation" {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"packed: subject OU must be \"Authenticator Attestation\"")
	}
	if cert.IsCA {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"packed: attestation certificate must not be a CA")
	}

	// When the AAGUID extension is present it must match authData.
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidFidoGenCeAAGUID) {
			continue
		}
		var aaguid []byte
		if _, err := asn1.Unmarshal(ext.Value, &aaguid); err != nil {
			return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
				"packed: invalid AAGUID extension: %v", err)
		}
		if !bytes.Equal(aaguid, obj.AuthData.AttData.AAGUID) {
			return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
				"packed: certificate AAGUID does not match authenticator data")
		}
	}

	attKey := &cose.PublicKey{Algorithm: cose.Algorithm(stmt.Alg), Key: cert.PublicKey}
	if err := attKey.Verify(signed, stmt.Sig); err != nil {
		return "", verifyErr(ErrSignatureInvalid, "attStmt.sig", "packed: %v", err)
	}
	return AttestationTypeBasic, nil
}

func verifyPackedSelf(obj *AttestationObject, stmt *packedStatement, signed []byte) (string, error) {
	credKey, err := cose.ParsePublicKey(obj.AuthData.AttData.PublicKey)
	if err != nil {
		return "", err
	}
	if cose.Algorithm(stmt.Alg) != credKey.Algorithm {
		return "", verifyErr(ErrAttestationFormat, "attStmt.alg",
			"packed: statement algorithm %d does not match credential key algorithm %d",
			stmt.Alg, credKey.Algorithm)
	}
	if err := credKey.Verify(signed, stmt.Sig); err != nil {
		return "", verifyErr(ErrSignatureInvalid, "attStmt.sig", "packed: %v", err)
	}
	return AttestationTypeSelf, nil
}
