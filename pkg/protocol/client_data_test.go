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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectedClientData_Verify(t *testing.T) {
	challenge, err := CreateChallenge()
	require.NoError(t, err)
	other, err := CreateChallenge()
	require.NoError(t, err)

	origins := []string{"https://example.com"}

	valid := func() CollectedClientData {
		return CollectedClientData{
			Type:      CreateCeremony,
			Challenge: challenge.String(),
			Origin:    "https://example.com",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CollectedClientData)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(c *CollectedClientData) {},
		},
		{
			name:    "wrong ceremony type",
			mutate:  func(c *CollectedClientData) { c.Type = GetCeremony },
			wantErr: ErrCeremonyMismatch,
		},
		{
			name:    "wrong challenge",
			mutate:  func(c *CollectedClientData) { c.Challenge = other.String() },
			wantErr: ErrChallengeMismatch,
		},
		{
			name:    "empty challenge",
			mutate:  func(c *CollectedClientData) { c.Challenge = "" },
			wantErr: ErrChallengeMismatch,
		},
		{
			name:    "unknown origin",
			mutate:  func(c *CollectedClientData) { c.Origin = "https://evil.com" },
			wantErr: ErrOriginMismatch,
		},
		{
			name:    "scheme mismatch",
			mutate:  func(c *CollectedClientData) { c.Origin = "http://example.com" },
			wantErr: ErrOriginMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cd := valid()
			tt.mutate(&cd)
			err := cd.Verify(CreateCeremony, challenge, origins, nil)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOriginAllowed_SecuredRPIDs(t *testing.T) {
	secured := []string{"example.com"}

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://example.com", true},
		{"https://app.example.com", true},
		{"https://deep.nested.example.com", true},
		{"https://app.example.com:8443", true},

		// Suffix of the hostname string is not a subdomain
		{"https://evilexample.com", false},
		{"https://example.com.evil.com", false},
		{"https://other.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.allowed, originAllowed(tt.origin, nil, secured))
		})
	}

	// Without secured RP IDs only exact origin matches pass
	assert.False(t, originAllowed("https://app.example.com", []string{"https://example.com"}, nil))
	assert.True(t, originAllowed("https://example.com", []string{"https://example.com"}, nil))
}

func TestVerificationError(t *testing.T) {
	err := verifyErr(ErrOriginMismatch, "origin", "origin %q not allowed", "https://evil.com")
	assert.ErrorIs(t, err, ErrOriginMismatch)
	assert.Equal(t, `origin mismatch: origin: origin "https://evil.com" not allowed`, err.Error())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "origin", verr.Field)
}
