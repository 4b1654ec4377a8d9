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
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// URLEncodedBase64 is a byte slice that marshals to and from padless
// base64url, the encoding WebAuthn uses for all binary fields on the
// JSON wire.
type URLEncodedBase64 []byte

// MarshalJSON encodes the bytes as a padless base64url JSON string.
func (b URLEncodedBase64) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

// UnmarshalJSON decodes a base64url JSON string. Padded input is
// accepted for interoperability; the canonical form is unpadded.
func (b *URLEncodedBase64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	// Strip padding so both padded and unpadded encodings decode.
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: invalid base64url: %v", ErrMalformedResponse, err)
	}
	*b = decoded
	return nil
}

// String returns the padless base64url form.
func (b URLEncodedBase64) String() string {
	return base64.RawURLEncoding.EncodeToString(b)
}
