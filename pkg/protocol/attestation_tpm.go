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
	"github.com/google/go-tpm/legacy/tpm2"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
)

const tpmFormat = "tpm"

// TPM_GENERATED_VALUE, the magic prefix of every TPMS_ATTEST.
const tpmGeneratedValue = 0xff544347

// tcg-kp-AIKCertificate extended key usage.
var oidTCGKpAIKCertificate = asn1.ObjectIdentifier{2, 23, 133, 8, 3}

var oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

type tpmStatement struct {
	Ver      string   `cbor:"ver"`
	Alg      int64    `cbor:"alg"`
	X5C      [][]byte `cbor:"x5c"`
	Sig      []byte   `cbor:"sig"`
	CertInfo []byte   `cbor:"certInfo"`
	PubArea  []byte   `cbor:"pubArea"`
}

// verifyTPMAttestation verifies a tpm attestation statement: the AIK
// certificate signed a TPMS_ATTEST certify structure whose extraData
// commits to authData||clientDataHash and whose attested name is the
// TPM name of a public area holding the credential key.
func verifyTPMAttestation(obj *AttestationObject, clientDataHash []byte) (string, error) {
	var stmt tpmStatement
	if err := cbor.Unmarshal(obj.RawStatement, &stmt); err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt", "tpm: invalid CBOR: %v", err)
	}
	if stmt.Ver != "2.0" {
		return "", verifyErr(ErrAttestationFormat, "attStmt.ver",
			"tpm: version must be \"2.0\", is %q", stmt.Ver)
	}
	if len(stmt.X5C) == 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c", "tpm: missing")
	}
	if len(stmt.Sig) == 0 || len(stmt.CertInfo) == 0 || len(stmt.PubArea) == 0 {
		return "", verifyErr(ErrAttestationFormat, "attStmt",
			"tpm: sig, certInfo and pubArea are all required")
	}

	// The TPM public area must hold the same key as the credential.
	pub, err := tpm2.DecodePublic(stmt.PubArea)
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.pubArea",
			"tpm: invalid TPMT_PUBLIC: %v", err)
	}
	tpmKey, err := pub.Key()
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.pubArea",
			"tpm: cannot extract key: %v", err)
	}
	credKey, err := cose.ParsePublicKey(obj.AuthData.AttData.PublicKey)
	if err != nil {
		return "", err
	}
	if !publicKeysEqual(tpmKey, credKey.Key) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.pubArea",
			"tpm: public area key does not match credential key")
	}

	ad, err := tpm2.DecodeAttestationData(stmt.CertInfo)
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.certInfo",
			"tpm: invalid TPMS_ATTEST: %v", err)
	}
	if ad.Magic != tpmGeneratedValue {
		return "", verifyErr(ErrAttestationFormat, "attStmt.certInfo",
			"tpm: magic 0x%08x is not TPM_GENERATED_VALUE", ad.Magic)
	}
	if ad.Type != tpm2.TagAttestCertify {
		return "", verifyErr(ErrAttestationFormat, "attStmt.certInfo",
			"tpm: attestation type is not TPM_ST_ATTEST_CERTIFY")
	}

	// extraData must commit to the signed ceremony data, hashed with
	// the statement algorithm.
	alg := cose.Algorithm(stmt.Alg)
	h, err := alg.Hash()
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.alg", "tpm: %v", err)
	}
	hasher := h.New()
	hasher.Write(obj.RawAuthData)
	hasher.Write(clientDataHash)
	if !bytes.Equal(ad.ExtraData, hasher.Sum(nil)) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.certInfo",
			"tpm: extraData does not match attToBeSigned hash")
	}

	// The attested name must be the name of pubArea under its nameAlg.
	if ad.AttestedCertifyInfo == nil || ad.AttestedCertifyInfo.Name.Digest == nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.certInfo",
			"tpm: certify info carries no attested name")
	}
	expectedName, err := pub.Name()
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.pubArea",
			"tpm: cannot compute public area name: %v", err)
	}
	attested := ad.AttestedCertifyInfo.Name
	if expectedName.Digest == nil ||
		attested.Digest.Alg != expectedName.Digest.Alg ||
		!bytes.Equal(attested.Digest.Value, expectedName.Digest.Value) {
		return "", verifyErr(ErrAttestationFormat, "attStmt.certInfo",
			"tpm: attested name does not match public area")
	}

	aikCert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return "", verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"tpm: invalid AIK certificate: %v", err)
	}
	if err := checkAIKCertificate(aikCert); err != nil {
		return "", err
	}

	attKey := &cose.PublicKey{Algorithm: alg, Key: aikCert.PublicKey}
	if err := attKey.Verify(stmt.CertInfo, stmt.Sig); err != nil {
		return "", verifyErr(ErrSignatureInvalid, "attStmt.sig", "tpm: %v", err)
	}
	return AttestationTypeAttCA, nil
}

// checkAIKCertificate enforces the TCG EK credential profile
// requirements on the attestation identity certificate.
func checkAIKCertificate(cert *x509.Certificate) error {
	if cert.Version != 3 {
		return verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"tpm: AIK certificate version must be 3, is %d", cert.Version)
	}
	if len(cert.Subject.Names) > 0 {
		return verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"tpm: AIK certificate subject must be empty")
	}
	hasSAN := false
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidSubjectAltName) {
			hasSAN = true
			break
		}
	}
	if !hasSAN {
		return verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"tpm: AIK certificate lacks a subject alternative name")
	}
	hasAIKEKU := false
	for _, eku := range cert.UnknownExtKeyUsage {
		if eku.Equal(oidTCGKpAIKCertificate) {
			hasAIKEKU = true
			break
		}
	}
	if !hasAIKEKU {
		return verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"tpm: AIK certificate lacks the tcg-kp-AIKCertificate EKU")
	}
	if cert.IsCA {
		return verifyErr(ErrAttestationFormat, "attStmt.x5c",
			"tpm: AIK certificate must not be a CA")
	}
	return nil
}
