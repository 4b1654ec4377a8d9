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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLEncodedBase64_RoundTrip(t *testing.T) {
	// 0xfb 0xef forces characters outside the standard alphabet
	original := URLEncodedBase64{0xfb, 0xef, 0x01, 0x02, 0x03}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `"--8BAgM"`, string(data))

	var decoded URLEncodedBase64
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestURLEncodedBase64_AcceptsPadded(t *testing.T) {
	var decoded URLEncodedBase64
	require.NoError(t, json.Unmarshal([]byte(`"aGVsbG8="`), &decoded))
	assert.Equal(t, []byte("hello"), []byte(decoded))
}

func TestURLEncodedBase64_Empty(t *testing.T) {
	data, err := json.Marshal(URLEncodedBase64(nil))
	require.NoError(t, err)
	assert.Equal(t, `""`, string(data))

	var decoded URLEncodedBase64
	require.NoError(t, json.Unmarshal([]byte(`""`), &decoded))
	assert.Empty(t, decoded)
}

func TestURLEncodedBase64_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not a string", `42`},
		{"standard alphabet", `"a+b/c"`},
		{"invalid characters", `"not base64!!"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded URLEncodedBase64
			err := json.Unmarshal([]byte(tt.input), &decoded)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestURLEncodedBase64_String(t *testing.T) {
	assert.Equal(t, "aGVsbG8", URLEncodedBase64("hello").String())
	assert.Equal(t, "", URLEncodedBase64(nil).String())
}
