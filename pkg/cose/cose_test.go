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
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEC2Key struct {
	KeyType   int64  `cbor:"1,keyasint"`
	Algorithm int64  `cbor:"3,keyasint"`
	Curve     int64  `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
	Y         []byte `cbor:"-3,keyasint"`
}

type testOKPKey struct {
	KeyType   int64  `cbor:"1,keyasint"`
	Algorithm int64  `cbor:"3,keyasint"`
	Curve     int64  `cbor:"-1,keyasint"`
	X         []byte `cbor:"-2,keyasint"`
}

type testRSAKey struct {
	KeyType   int64  `cbor:"1,keyasint"`
	Algorithm int64  `cbor:"3,keyasint"`
	Modulus   []byte `cbor:"-1,keyasint"`
	Exponent  []byte `cbor:"-2,keyasint"`
}

func encodeEC2(t *testing.T, alg Algorithm, crv int64, pub *ecdsa.PublicKey) []byte {
	t.Helper()
	size := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, size)
	y := make([]byte, size)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	data, err := cbor.Marshal(testEC2Key{
		KeyType:   2,
		Algorithm: int64(alg),
		Curve:     crv,
		X:         x,
		Y:         y,
	})
	require.NoError(t, err)
	return data
}

func encodeRSA(t *testing.T, alg Algorithm, pub *rsa.PublicKey) []byte {
	t.Helper()
	data, err := cbor.Marshal(testRSAKey{
		KeyType:   3,
		Algorithm: int64(alg),
		Modulus:   pub.N.Bytes(),
		Exponent:  []byte{0x01, 0x00, 0x01},
	})
	require.NoError(t, err)
	return data
}

func TestParsePublicKeyEC2(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pk, err := ParsePublicKey(encodeEC2(t, ES256, 1, &priv.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, ES256, pk.Algorithm)

	parsed, ok := pk.Key.(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Zero(t, parsed.X.Cmp(priv.X))
	assert.Zero(t, parsed.Y.Cmp(priv.Y))
	assert.NotEmpty(t, pk.Raw)
}

func TestParsePublicKeyRejectsBadKeys(t *testing.T) {
	// Not CBOR at all
	_, err := ParsePublicKey([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrInvalidKey)

	// Missing algorithm
	data, err := cbor.Marshal(map[int64]any{1: int64(2)})
	require.NoError(t, err)
	_, err = ParsePublicKey(data)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	// Unknown algorithm identifier
	data, err = cbor.Marshal(map[int64]any{1: int64(2), 3: int64(-999)})
	require.NoError(t, err)
	_, err = ParsePublicKey(data)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	// Unknown key type
	data, err = cbor.Marshal(map[int64]any{1: int64(99), 3: int64(-7)})
	require.NoError(t, err)
	_, err = ParsePublicKey(data)
	assert.ErrorIs(t, err, ErrInvalidKey)

	// Point not on curve
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	bad := priv.PublicKey
	bad.X = bad.X.Add(bad.X, bad.Y) // corrupt the point
	_, err = ParsePublicKey(encodeEC2(t, ES256, 1, &bad))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestParsePublicKeyRejectsOversizedRSAExponent(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// 9-byte exponent: decoding it into an int would wrap around
	data, err := cbor.Marshal(testRSAKey{
		KeyType:   3,
		Algorithm: int64(RS256),
		Modulus:   priv.PublicKey.N.Bytes(),
		Exponent:  []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
	})
	require.NoError(t, err)

	_, err = ParsePublicKey(data)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestVerifyES256(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pk, err := ParsePublicKey(encodeEC2(t, ES256, 1, &priv.PublicKey))
	require.NoError(t, err)

	data := []byte("signed payload")
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	require.NoError(t, pk.Verify(data, sig))
	assert.ErrorIs(t, pk.Verify([]byte("tampered payload"), sig), ErrSignatureInvalid)
}

func TestVerifyES512(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)
	pk, err := ParsePublicKey(encodeEC2(t, ES512, 3, &priv.PublicKey))
	require.NoError(t, err)

	data := []byte("signed payload")
	digest := sha512.Sum512(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	require.NoError(t, pk.Verify(data, sig))
	assert.ErrorIs(t, pk.Verify([]byte("tampered"), sig), ErrSignatureInvalid)
}

func TestVerifyRS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pk, err := ParsePublicKey(encodeRSA(t, RS256, &priv.PublicKey))
	require.NoError(t, err)

	data := []byte("signed payload")
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, 5, digest[:]) // crypto.SHA256 == 5
	require.NoError(t, err)

	require.NoError(t, pk.Verify(data, sig))
	assert.ErrorIs(t, pk.Verify([]byte("tampered"), sig), ErrSignatureInvalid)
}

func TestVerifyPS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pk, err := ParsePublicKey(encodeRSA(t, PS256, &priv.PublicKey))
	require.NoError(t, err)

	data := []byte("signed payload")
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, 5, digest[:], nil)
	require.NoError(t, err)

	require.NoError(t, pk.Verify(data, sig))
	assert.ErrorIs(t, pk.Verify([]byte("tampered"), sig), ErrSignatureInvalid)
}

func TestVerifyEdDSA(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	data, err := cbor.Marshal(testOKPKey{
		KeyType:   1,
		Algorithm: int64(EdDSA),
		Curve:     6,
		X:         pub,
	})
	require.NoError(t, err)
	pk, err := ParsePublicKey(data)
	require.NoError(t, err)

	msg := []byte("signed payload")
	sig := ed25519.Sign(priv, msg)

	require.NoError(t, pk.Verify(msg, sig))
	assert.ErrorIs(t, pk.Verify([]byte("tampered"), sig), ErrSignatureInvalid)
}

func TestVerifyES256K(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()

	data, err := cbor.Marshal(testEC2Key{
		KeyType:   2,
		Algorithm: int64(ES256K),
		Curve:     8,
		X:         pub.X().Bytes(),
		Y:         pub.Y().Bytes(),
	})
	require.NoError(t, err)
	pk, err := ParsePublicKey(data)
	require.NoError(t, err)
	assert.IsType(t, &SecpPublicKey{}, pk.Key)

	msg := []byte("signed payload")
	digest := sha256.Sum256(msg)
	sig := secpecdsa.Sign(priv, digest[:])

	require.NoError(t, pk.Verify(msg, sig.Serialize()))
	assert.ErrorIs(t, pk.Verify([]byte("tampered"), sig.Serialize()), ErrSignatureInvalid)
}

func TestAlgorithmString(t *testing.T) {
	assert.Equal(t, "ES256", ES256.String())
	assert.Equal(t, "RS256", RS256.String())
	assert.Equal(t, "EdDSA", EdDSA.String())
	assert.Equal(t, "Algorithm(-999)", Algorithm(-999).String())
}

func TestAlgorithmHash(t *testing.T) {
	h, err := ES256.Hash()
	require.NoError(t, err)
	assert.Equal(t, "SHA-256", h.String())

	h, err = RS512.Hash()
	require.NoError(t, err)
	assert.Equal(t, "SHA-512", h.String())

	_, err = EdDSA.Hash()
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestSupportedAlgorithmsOrder(t *testing.T) {
	// The advertised preference order matters: servers prefer RSA
	// first, EdDSA last.
	algs := SupportedAlgorithms()
	require.Len(t, algs, 7)
	assert.Equal(t, RS256, algs[0])
	assert.Equal(t, EdDSA, algs[len(algs)-1])
}
