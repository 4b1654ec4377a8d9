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

package webauthn

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLifecycle walks an account through the full credential
// lifecycle: enroll two keys, authenticate with both, lose one, then
// deactivate.
func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	yubikey, err := NewMockAuthenticator(testRPID, WithFormat("packed"))
	require.NoError(t, err)
	backup, err := NewMockAuthenticator(testRPID, WithFormat("fido-u2f"))
	require.NoError(t, err)

	// Enroll both keys
	register(t, svc, user, yubikey)
	register(t, svc, user, backup)

	creds, err := svc.Credentials(ctx, user)
	require.NoError(t, err)
	require.Len(t, creds, 2)

	// Authenticate with each in turn
	for _, auth := range []*MockAuthenticator{yubikey, backup} {
		opts, err := svc.StartAuthentication(ctx, user)
		require.NoError(t, err)
		assert.Len(t, opts.AllowCredentials, 2)

		response, err := auth.GetResponse(opts, testOrigin)
		require.NoError(t, err)
		_, cred, err := svc.FinishAuthentication(ctx, user, response)
		require.NoError(t, err)
		assert.Equal(t, []byte(auth.CredentialID), []byte(cred.ID))
	}

	// The primary key is lost; remove it and keep authenticating with
	// the backup.
	require.NoError(t, svc.RemoveCredential(ctx, user, yubikey.CredentialID))
	opts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	assert.Len(t, opts.AllowCredentials, 1)

	response, err := backup.GetResponse(opts, testOrigin)
	require.NoError(t, err)
	_, _, err = svc.FinishAuthentication(ctx, user, response)
	require.NoError(t, err)

	// Removing the backup deactivates the account entirely
	require.NoError(t, svc.RemoveCredential(ctx, user, backup.CredentialID))
	active, err := svc.IsActive(ctx, user)
	require.NoError(t, err)
	assert.False(t, active)
}

// TestAttestationFormats registers a credential under each mock
// format and checks the recorded attestation type.
func TestAttestationFormats(t *testing.T) {
	tests := []struct {
		format   string
		attType  string
		loginUID int
	}{
		{"none", "None", 1},
		{"packed", "Self", 2},
		{"fido-u2f", "Basic", 3},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			svc := newTestService(t)
			user := User{LoginType: "BE", UID: tt.loginUID, Name: fmt.Sprintf("user%d", tt.loginUID)}

			auth, err := NewMockAuthenticator(testRPID, WithFormat(tt.format))
			require.NoError(t, err)
			cred := register(t, svc, user, auth)
			assert.Equal(t, tt.attType, cred.AttestationType)
		})
	}
}

// TestSecuredRPIDOrigins checks that subdomain origins verify when
// the host is listed as a secured RP ID.
func TestSecuredRPIDOrigins(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ServiceParams{
		Config: &Config{
			RPID:          testRPID,
			RPDisplayName: "Example",
			RPOrigins:     []string{testOrigin},
			SecuredRPIDs:  []string{testRPID},
		},
		CredentialStore: NewMemoryCredentialStore(),
		OptionsStore:    NewMemoryOptionsStore(),
	})
	require.NoError(t, err)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	// Registration from a subdomain origin not in RPOrigins
	opts, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	response, err := auth.CreateResponse(opts, "https://app.example.com")
	require.NoError(t, err)
	_, err = svc.FinishRegistration(ctx, user, response, "", "")
	require.NoError(t, err)

	// Authentication from another subdomain
	reqOpts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err = auth.GetResponse(reqOpts, "https://login.example.com")
	require.NoError(t, err)
	_, _, err = svc.FinishAuthentication(ctx, user, response)
	require.NoError(t, err)

	// An unrelated host that merely ends with the RP ID string must
	// not pass.
	reqOpts, err = svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err = auth.GetResponse(reqOpts, "https://evilexample.com")
	require.NoError(t, err)
	_, _, err = svc.FinishAuthentication(ctx, user, response)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOriginMismatch)
}

// TestUserVerificationRequired configures the UV requirement and
// checks both flag outcomes.
func TestUserVerificationRequired(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ServiceParams{
		Config: &Config{
			RPID:             testRPID,
			RPDisplayName:    "Example",
			RPOrigins:        []string{testOrigin},
			UserVerification: "required",
		},
		CredentialStore: NewMemoryCredentialStore(),
		OptionsStore:    NewMemoryOptionsStore(),
	})
	require.NoError(t, err)
	user := testUser()

	// An authenticator that never verifies the user fails registration
	unverified, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	opts, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	response, err := unverified.CreateResponse(opts, testOrigin)
	require.NoError(t, err)
	_, err = svc.FinishRegistration(ctx, user, response, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotVerified)

	// One that does passes registration and authentication
	verified, err := NewMockAuthenticator(testRPID, WithUserVerified(true))
	require.NoError(t, err)
	register(t, svc, user, verified)

	reqOpts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err = verified.GetResponse(reqOpts, testOrigin)
	require.NoError(t, err)
	_, _, err = svc.FinishAuthentication(ctx, user, response)
	require.NoError(t, err)
}

// TestAccountIsolation confirms two accounts using the same service
// never see each other's credentials or ceremonies.
func TestAccountIsolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice := User{LoginType: "BE", UID: 1, Name: "alice"}
	bob := User{LoginType: "FE", UID: 1, Name: "bob"}

	// Distinct login types produce distinct handles even for equal UIDs
	assert.NotEqual(t, alice.Handle(), bob.Handle())

	aliceAuth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, alice, aliceAuth)

	// Bob has no credentials and no pending ceremonies
	active, err := svc.IsActive(ctx, bob)
	require.NoError(t, err)
	assert.False(t, active)

	// Alice's pending authentication cannot be finished by Bob
	opts, err := svc.StartAuthentication(ctx, alice)
	require.NoError(t, err)
	response, err := aliceAuth.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, bob, response)
	require.Error(t, err)
	assert.True(t, IsChallengeMismatch(err))

	// Alice can still finish hers
	_, _, err = svc.FinishAuthentication(ctx, alice, response)
	require.NoError(t, err)
}
