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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

func validTestConfig() *Config {
	return &Config{
		RPID:          testRPID,
		RPDisplayName: "Example",
		RPOrigins:     []string{testOrigin},
	}
}

func testUser() User {
	return User{
		LoginType:   "BE",
		UID:         12,
		Name:        "alice",
		DisplayName: "Alice",
	}
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		params  ServiceParams
		wantErr string
	}{
		{
			name:    "nil config",
			params:  ServiceParams{},
			wantErr: "config is required",
		},
		{
			name: "nil credential store",
			params: ServiceParams{
				Config: validTestConfig(),
			},
			wantErr: "credential store is required",
		},
		{
			name: "nil options store",
			params: ServiceParams{
				Config:          validTestConfig(),
				CredentialStore: NewMemoryCredentialStore(),
			},
			wantErr: "options store is required",
		},
		{
			name: "invalid config",
			params: ServiceParams{
				Config:          &Config{}, // missing required fields
				CredentialStore: NewMemoryCredentialStore(),
				OptionsStore:    NewMemoryOptionsStore(),
			},
			wantErr: "invalid config",
		},
		{
			name: "unknown algorithm",
			params: ServiceParams{
				Config: &Config{
					RPID:          testRPID,
					RPDisplayName: "Example",
					RPOrigins:     []string{testOrigin},
					Algorithms:    []string{"HS256"},
				},
				CredentialStore: NewMemoryCredentialStore(),
				OptionsStore:    NewMemoryOptionsStore(),
			},
			wantErr: "unknown algorithm",
		},
		{
			name: "valid params",
			params: ServiceParams{
				Config:          validTestConfig(),
				CredentialStore: NewMemoryCredentialStore(),
				OptionsStore:    NewMemoryOptionsStore(),
			},
			wantErr: "",
		},
		{
			name: "valid params with JWT generator",
			params: ServiceParams{
				Config:          validTestConfig(),
				CredentialStore: NewMemoryCredentialStore(),
				OptionsStore:    NewMemoryOptionsStore(),
				JWTGenerator:    &mockJWTGenerator{},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.params)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
				assert.NotNil(t, svc.Config())
			}
		})
	}
}

type mockJWTGenerator struct {
	token string
	err   error
}

func (m *mockJWTGenerator) GenerateToken(ctx context.Context, user User) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.token != "" {
		return m.token, nil
	}
	return "mock-jwt-token", nil
}

func newTestService(t *testing.T) *Service {
	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		CredentialStore: NewMemoryCredentialStore(),
		OptionsStore:    NewMemoryOptionsStore(),
	})
	require.NoError(t, err)
	return svc
}

// register runs a full registration ceremony through the mock
// authenticator and returns the stored credential source.
func register(t *testing.T, svc *Service, user User, auth *MockAuthenticator) *CredentialSource {
	t.Helper()
	ctx := context.Background()

	opts, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)

	response, err := auth.CreateResponse(opts, testOrigin)
	require.NoError(t, err)

	cred, err := svc.FinishRegistration(ctx, user, response, "my key", "usb")
	require.NoError(t, err)
	return cred
}

func TestService_StartRegistration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	options, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, testRPID, options.RelyingParty.ID)
	assert.Equal(t, "alice", options.User.Name)
	assert.Equal(t, "Alice", options.User.DisplayName)
	assert.Equal(t, []byte("BE:12"), []byte(options.User.ID))
	assert.Len(t, options.Challenge, 32)
	assert.Empty(t, options.ExcludeCredentials)
	assert.NotEmpty(t, options.Parameters)
}

func TestService_StartRegistration_ExcludesExisting(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	cred := register(t, svc, user, auth)

	// A second registration must exclude the registered credential
	options, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	require.Len(t, options.ExcludeCredentials, 1)
	assert.Equal(t, []byte(cred.ID), []byte(options.ExcludeCredentials[0].ID))
}

func TestService_FinishRegistration(t *testing.T) {
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	cred := register(t, svc, user, auth)

	assert.Equal(t, []byte(auth.CredentialID), []byte(cred.ID))
	assert.Equal(t, user.Handle(), []byte(cred.UserHandle))
	assert.Equal(t, "my key", cred.Description)
	assert.Equal(t, "usb", cred.Icon)
	assert.Equal(t, "None", cred.AttestationType)
	assert.NotZero(t, cred.CreatedAt)
	assert.Zero(t, cred.LastUsedAt)
}

func TestService_FinishRegistration_WithoutStart(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// No pending options: the finish must fail closed
	_, err := svc.FinishRegistration(ctx, testUser(), []byte(`{}`), "", "")
	require.Error(t, err)
	assert.True(t, IsChallengeMismatch(err))
}

func TestService_FinishRegistration_ConsumesOptions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	opts, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	response, err := auth.CreateResponse(opts, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, user, response, "", "")
	require.NoError(t, err)

	// Replaying the same response must fail: the pending options were
	// consumed by the first finish.
	_, err = svc.FinishRegistration(ctx, user, response, "", "")
	require.Error(t, err)
	assert.True(t, IsChallengeMismatch(err))
}

func TestService_FinishRegistration_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	// Same authenticator responds to a fresh ceremony with the same
	// credential ID.
	opts, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	response, err := auth.CreateResponse(opts, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, user, response, "", "")
	require.Error(t, err)
	assert.True(t, IsDuplicateCredential(err))
}

func TestService_FinishRegistration_WrongOrigin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	opts, err := svc.StartRegistration(ctx, user)
	require.NoError(t, err)
	response, err := auth.CreateResponse(opts, "https://evil.test")
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, user, response, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOriginMismatch)
}

func TestService_StartAuthentication_NoCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.StartAuthentication(ctx, testUser())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestService_Authentication(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	opts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, testRPID, opts.RelyingPartyID)
	require.Len(t, opts.AllowCredentials, 1)

	response, err := auth.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	token, cred, err := svc.FinishAuthentication(ctx, user, response)
	require.NoError(t, err)
	assert.Empty(t, token) // no JWT generator configured
	assert.Equal(t, uint32(1), cred.SignCount)
	assert.NotZero(t, cred.LastUsedAt)
	assert.Zero(t, svc.Attempts(ctx, user))
}

func TestService_Authentication_WithJWT(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ServiceParams{
		Config:          validTestConfig(),
		CredentialStore: NewMemoryCredentialStore(),
		OptionsStore:    NewMemoryOptionsStore(),
		JWTGenerator:    &mockJWTGenerator{token: "custom-jwt-token"},
	})
	require.NoError(t, err)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	opts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err := auth.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	token, _, err := svc.FinishAuthentication(ctx, user, response)
	require.NoError(t, err)
	assert.Equal(t, "custom-jwt-token", token)
}

func TestService_Authentication_Replay(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID, WithSignCount(5))
	require.NoError(t, err)
	register(t, svc, user, auth)

	// A cloned authenticator replays a stale counter
	auth.AutoIncrement = false
	opts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err := auth.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, user, response)
	require.Error(t, err)
	assert.True(t, IsReplayDetected(err))
	assert.Equal(t, 1, svc.Attempts(ctx, user))

	// The genuine authenticator advances past the stored counter
	auth.AutoIncrement = true
	opts, err = svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err = auth.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	_, cred, err := svc.FinishAuthentication(ctx, user, response)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), cred.SignCount)
}

func TestService_Authentication_UnknownCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	registered, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, registered)

	// An authenticator that was never registered answers the challenge
	stranger, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	opts, err := svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	response, err := stranger.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, user, response)
	require.Error(t, err)
	assert.True(t, IsUnknownCredential(err))
	assert.Equal(t, 1, svc.Attempts(ctx, user))
}

func TestService_Authentication_OtherUsersCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice := testUser()
	bob := User{LoginType: "BE", UID: 13, Name: "bob"}

	aliceAuth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, alice, aliceAuth)

	bobAuth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, bob, bobAuth)

	// Bob's ceremony answered with Alice's credential must not verify
	opts, err := svc.StartAuthentication(ctx, bob)
	require.NoError(t, err)
	response, err := aliceAuth.GetResponse(opts, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, bob, response)
	require.Error(t, err)
	assert.True(t, IsUnknownCredential(err))
}

func TestService_Authentication_MalformedResponse(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	_, err = svc.StartAuthentication(ctx, user)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, user, []byte(`not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 1, svc.Attempts(ctx, user))
}

func TestService_Credentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	creds, err := svc.Credentials(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, creds)

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	creds, err = svc.Credentials(ctx, user)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestService_RemoveCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	// Removing a credential that never existed is a no-op
	require.NoError(t, svc.RemoveCredential(ctx, user, []byte{1, 2, 3}))

	first, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, first)
	second, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, second)

	// Removing one of two keeps the account active
	require.NoError(t, svc.RemoveCredential(ctx, user, first.CredentialID))
	active, err := svc.IsActive(ctx, user)
	require.NoError(t, err)
	assert.True(t, active)

	// Removing the last credential deactivates the account
	require.NoError(t, svc.RemoveCredential(ctx, user, second.CredentialID))
	active, err = svc.IsActive(ctx, user)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestService_RemoveCredential_WrongOwner(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	alice := testUser()
	bob := User{LoginType: "BE", UID: 13, Name: "bob"}

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, alice, auth)

	// Bob cannot remove Alice's credential
	err = svc.RemoveCredential(ctx, bob, auth.CredentialID)
	require.Error(t, err)
	assert.True(t, IsUnknownCredential(err))

	creds, err := svc.Credentials(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestService_Deactivate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user := testUser()

	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	// Leave a pending ceremony and a failed attempt behind
	_, err = svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	_, _, err = svc.FinishAuthentication(ctx, user, []byte(`bad`))
	require.Error(t, err)
	assert.Equal(t, 1, svc.Attempts(ctx, user))

	require.NoError(t, svc.Deactivate(ctx, user))

	active, err := svc.IsActive(ctx, user)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Zero(t, svc.Attempts(ctx, user))

	// The pending ceremony is gone too
	_, err = svc.StartAuthentication(ctx, user)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestService_Attempts_SurviveRestart(t *testing.T) {
	ctx := context.Background()
	props := NewMemoryPropertyManager()
	creds := NewPropertyCredentialStore(props)
	newSvc := func() *Service {
		svc, err := NewService(ServiceParams{
			Config:          validTestConfig(),
			CredentialStore: creds,
			OptionsStore:    NewMemoryOptionsStore(),
			Properties:      props,
		})
		require.NoError(t, err)
		return svc
	}

	svc := newSvc()
	user := testUser()
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	register(t, svc, user, auth)

	_, err = svc.StartAuthentication(ctx, user)
	require.NoError(t, err)
	_, _, err = svc.FinishAuthentication(ctx, user, []byte(`bad`))
	require.Error(t, err)
	require.Equal(t, 1, svc.Attempts(ctx, user))

	// A fresh service over the same property manager still sees the
	// recorded failure.
	restarted := newSvc()
	assert.Equal(t, 1, restarted.Attempts(ctx, user))

	// Deactivation clears the persisted count too
	require.NoError(t, restarted.Deactivate(ctx, user))
	assert.Zero(t, restarted.Attempts(ctx, user))
	assert.Zero(t, newSvc().Attempts(ctx, user))
}

func TestService_NotConfigured(t *testing.T) {
	svc := &Service{configured: false}
	ctx := context.Background()
	user := testUser()

	_, err := svc.StartRegistration(ctx, user)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.FinishRegistration(ctx, user, nil, "", "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.StartAuthentication(ctx, user)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = svc.FinishAuthentication(ctx, user, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Credentials(ctx, user)
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = svc.RemoveCredential(ctx, user, []byte{1})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.IsActive(ctx, user)
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = svc.Deactivate(ctx, user)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestService_Config(t *testing.T) {
	svc := newTestService(t)
	cfg := svc.Config()
	require.NotNil(t, cfg)
	assert.Equal(t, testRPID, cfg.RPID)
	// SetDefaults ran during construction
	assert.Contains(t, cfg.SecuredRPIDs, "localhost")
}
