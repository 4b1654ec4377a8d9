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

// Package cose parses COSE public keys and verifies WebAuthn signatures.
//
// A COSE key is the CBOR-encoded, algorithm-tagged public key an
// authenticator emits during registration. This package decodes the
// EC2, RSA, and OKP key types and verifies signatures for the full
// algorithm set a Relying Party is expected to advertise:
// ES256/ES384/ES512, ES256K, RS256/RS384/RS512, PS256/PS384/PS512,
// and EdDSA (Ed25519).
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Algorithm is a COSE algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

// Signature algorithms supported by this package.
const (
	ES256  Algorithm = -7
	EdDSA  Algorithm = -8
	ES384  Algorithm = -35
	ES512  Algorithm = -36
	PS256  Algorithm = -37
	PS384  Algorithm = -38
	PS512  Algorithm = -39
	ES256K Algorithm = -47
	RS256  Algorithm = -257
	RS384  Algorithm = -258
	RS512  Algorithm = -259
)

var algStrings = map[Algorithm]string{
	ES256:  "ES256",
	EdDSA:  "EdDSA",
	ES384:  "ES384",
	ES512:  "ES512",
	PS256:  "PS256",
	PS384:  "PS384",
	PS512:  "PS512",
	ES256K: "ES256K",
	RS256:  "RS256",
	RS384:  "RS384",
	RS512:  "RS512",
}

// String returns the human readable name of the algorithm.
func (a Algorithm) String() string {
	if s, ok := algStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// SupportedAlgorithms returns the default ordered preference list a
// Relying Party advertises in credential creation options.
func SupportedAlgorithms() []Algorithm {
	return []Algorithm{RS256, RS512, PS256, PS512, ES256, ES512, EdDSA}
}

// AllAlgorithms returns every algorithm this package can verify.
func AllAlgorithms() []Algorithm {
	return []Algorithm{
		ES256, ES384, ES512, ES256K,
		RS256, RS384, RS512,
		PS256, PS384, PS512,
		EdDSA,
	}
}

// COSE key types.
//
// https://www.iana.org/assignments/cose/cose.xhtml#key-type
const (
	keyTypeOKP int64 = 1
	keyTypeEC2 int64 = 2
	keyTypeRSA int64 = 3
)

// COSE elliptic curve identifiers.
const (
	curveP256      int64 = 1
	curveP384      int64 = 2
	curveP521      int64 = 3
	curveEd25519   int64 = 6
	curveSecp256k1 int64 = 8
)

// Sentinel errors for COSE key handling.
var (
	// ErrUnsupportedAlgorithm is returned when a key declares an
	// algorithm this package cannot verify, or declares none at all.
	ErrUnsupportedAlgorithm = errors.New("unsupported COSE algorithm")

	// ErrInvalidKey is returned when COSE key data is malformed or
	// inconsistent with its declared key type.
	ErrInvalidKey = errors.New("invalid COSE key")

	// ErrSignatureInvalid is returned when a signature does not verify
	// under the key's declared algorithm.
	ErrSignatureInvalid = errors.New("invalid signature")
)

// PublicKey is a parsed, algorithm-tagged COSE public key.
type PublicKey struct {
	// Algorithm is the COSE signature algorithm the key is registered for.
	Algorithm Algorithm

	// Key is the parsed crypto.PublicKey (*ecdsa.PublicKey,
	// *rsa.PublicKey, ed25519.PublicKey, or *SecpPublicKey for ES256K).
	Key crypto.PublicKey

	// Raw is the original CBOR encoding of the key.
	Raw []byte
}

type coseKeyHeader struct {
	KeyType   int64 `cbor:"1,keyasint"`
	Algorithm int64 `cbor:"3,keyasint,omitempty"`
}

type ec2Key struct {
	Curve int64  `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
	Y     []byte `cbor:"-3,keyasint"`
}

type okpKey struct {
	Curve int64  `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
}

type rsaKey struct {
	Modulus  []byte `cbor:"-1,keyasint"`
	Exponent []byte `cbor:"-2,keyasint"`
}

// ParsePublicKey decodes a COSE public key from its CBOR encoding.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	var hdr coseKeyHeader
	if err := cbor.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if hdr.Algorithm == 0 {
		return nil, fmt.Errorf("%w: key declares no algorithm", ErrUnsupportedAlgorithm)
	}

	alg := Algorithm(hdr.Algorithm)
	if _, ok := algStrings[alg]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, hdr.Algorithm)
	}

	pk := &PublicKey{Algorithm: alg, Raw: append([]byte(nil), data...)}

	switch hdr.KeyType {
	case keyTypeEC2:
		var k ec2Key
		if err := cbor.Unmarshal(data, &k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		key, err := parseEC2(&k)
		if err != nil {
			return nil, err
		}
		pk.Key = key
	case keyTypeRSA:
		var k rsaKey
		if err := cbor.Unmarshal(data, &k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if len(k.Modulus) == 0 || len(k.Exponent) == 0 {
			return nil, fmt.Errorf("%w: RSA key missing modulus or exponent", ErrInvalidKey)
		}
		// Exponents longer than 4 bytes would overflow the accumulator.
		if len(k.Exponent) > 4 {
			return nil, fmt.Errorf("%w: RSA exponent exceeds 4 bytes", ErrInvalidKey)
		}
		exp := 0
		for _, b := range k.Exponent {
			exp = exp<<8 | int(b)
		}
		pk.Key = &rsa.PublicKey{
			N: new(big.Int).SetBytes(k.Modulus),
			E: exp,
		}
	case keyTypeOKP:
		var k okpKey
		if err := cbor.Unmarshal(data, &k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if k.Curve != curveEd25519 {
			return nil, fmt.Errorf("%w: unsupported OKP curve %d", ErrInvalidKey, k.Curve)
		}
		if len(k.X) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: Ed25519 key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
		}
		pk.Key = ed25519.PublicKey(k.X)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %d", ErrInvalidKey, hdr.KeyType)
	}

	return pk, nil
}

func parseEC2(k *ec2Key) (crypto.PublicKey, error) {
	if len(k.X) == 0 || len(k.Y) == 0 {
		return nil, fmt.Errorf("%w: EC2 key missing coordinates", ErrInvalidKey)
	}

	var curve elliptic.Curve
	switch k.Curve {
	case curveP256:
		curve = elliptic.P256()
	case curveP384:
		curve = elliptic.P384()
	case curveP521:
		curve = elliptic.P521()
	case curveSecp256k1:
		return parseSecp256k1(k.X, k.Y)
	default:
		return nil, fmt.Errorf("%w: unsupported EC2 curve %d", ErrInvalidKey, k.Curve)
	}

	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(k.X),
		Y:     new(big.Int).SetBytes(k.Y),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: point is not on curve", ErrInvalidKey)
	}
	return pub, nil
}
