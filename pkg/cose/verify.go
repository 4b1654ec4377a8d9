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

package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SecpPublicKey wraps a secp256k1 public key for ES256K verification.
// The stdlib has no secp256k1 support, so the curve is handled by the
// decred implementation.
type SecpPublicKey struct {
	key *secp256k1.PublicKey
}

func parseSecp256k1(x, y []byte) (crypto.PublicKey, error) {
	if len(x) > 32 || len(y) > 32 {
		return nil, fmt.Errorf("%w: secp256k1 coordinate too large", ErrInvalidKey)
	}
	// Uncompressed SEC1 point: 0x04 || X || Y, 32-byte coordinates.
	serialized := make([]byte, 65)
	serialized[0] = 0x04
	copy(serialized[1+32-len(x):33], x)
	copy(serialized[33+32-len(y):], y)
	key, err := secp256k1.ParsePubKey(serialized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &SecpPublicKey{key: key}, nil
}

// Verify checks sig over data using the key's declared algorithm.
// Returns ErrSignatureInvalid on verification failure and
// ErrUnsupportedAlgorithm when the algorithm/key combination cannot
// be verified.
func (pk *PublicKey) Verify(data, sig []byte) error {
	switch pk.Algorithm {
	case ES256, ES384, ES512:
		return pk.verifyECDSA(data, sig)
	case ES256K:
		return pk.verifySecp256k1(data, sig)
	case RS256, RS384, RS512:
		return pk.verifyRSAPKCS1(data, sig)
	case PS256, PS384, PS512:
		return pk.verifyRSAPSS(data, sig)
	case EdDSA:
		return pk.verifyEd25519(data, sig)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, pk.Algorithm)
	}
}

// Hash returns the digest function associated with the algorithm.
// EdDSA has no prehash and returns an error.
func (a Algorithm) Hash() (crypto.Hash, error) {
	switch a {
	case ES256, ES256K, RS256, PS256:
		return crypto.SHA256, nil
	case ES384, RS384, PS384:
		return crypto.SHA384, nil
	case ES512, RS512, PS512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("%w: no digest for %s", ErrUnsupportedAlgorithm, a)
	}
}

func (pk *PublicKey) digest(data []byte) ([]byte, error) {
	h, err := pk.Algorithm.Hash()
	if err != nil {
		return nil, err
	}
	switch h {
	case crypto.SHA256:
		d := sha256.Sum256(data)
		return d[:], nil
	case crypto.SHA384:
		d := sha512.Sum384(data)
		return d[:], nil
	default:
		d := sha512.Sum512(data)
		return d[:], nil
	}
}

func (pk *PublicKey) verifyECDSA(data, sig []byte) error {
	key, ok := pk.Key.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: %s requires an ECDSA key, have %T", ErrUnsupportedAlgorithm, pk.Algorithm, pk.Key)
	}
	digest, err := pk.digest(data)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(key, digest, sig) {
		return fmt.Errorf("%w: %s", ErrSignatureInvalid, pk.Algorithm)
	}
	return nil
}

func (pk *PublicKey) verifySecp256k1(data, sig []byte) error {
	key, ok := pk.Key.(*SecpPublicKey)
	if !ok {
		return fmt.Errorf("%w: ES256K requires a secp256k1 key, have %T", ErrUnsupportedAlgorithm, pk.Key)
	}
	parsed, err := secpecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	digest := sha256.Sum256(data)
	if !parsed.Verify(digest[:], key.key) {
		return fmt.Errorf("%w: ES256K", ErrSignatureInvalid)
	}
	return nil
}

func (pk *PublicKey) verifyRSAPKCS1(data, sig []byte) error {
	key, ok := pk.Key.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: %s requires an RSA key, have %T", ErrUnsupportedAlgorithm, pk.Algorithm, pk.Key)
	}
	h, err := pk.Algorithm.Hash()
	if err != nil {
		return err
	}
	digest, err := pk.digest(data)
	if err != nil {
		return err
	}
	if err := rsa.VerifyPKCS1v15(key, h, digest, sig); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSignatureInvalid, pk.Algorithm, err)
	}
	return nil
}

func (pk *PublicKey) verifyRSAPSS(data, sig []byte) error {
	key, ok := pk.Key.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: %s requires an RSA key, have %T", ErrUnsupportedAlgorithm, pk.Algorithm, pk.Key)
	}
	h, err := pk.Algorithm.Hash()
	if err != nil {
		return err
	}
	digest, err := pk.digest(data)
	if err != nil {
		return err
	}
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: h}
	if err := rsa.VerifyPSS(key, h, digest, sig, opts); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSignatureInvalid, pk.Algorithm, err)
	}
	return nil
}

func (pk *PublicKey) verifyEd25519(data, sig []byte) error {
	key, ok := pk.Key.(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("%w: EdDSA requires an Ed25519 key, have %T", ErrUnsupportedAlgorithm, pk.Key)
	}
	if !ed25519.Verify(key, data, sig) {
		return fmt.Errorf("%w: EdDSA", ErrSignatureInvalid)
	}
	return nil
}
