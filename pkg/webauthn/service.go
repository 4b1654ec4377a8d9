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
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
	"github.com/jeremyhahn/go-mfa-webauthn/pkg/metrics"
	"github.com/jeremyhahn/go-mfa-webauthn/pkg/protocol"
)

// Service provides WebAuthn registration and authentication
// operations on top of the ceremony engine. It owns no goroutines;
// per-account mutation is serialized by the stores.
type Service struct {
	config     *Config
	creds      CredentialStore
	options    OptionsStore
	registry   *protocol.FormatRegistry
	jwtGen     JWTGenerator    // optional
	props      PropertyManager // optional
	logger     *slog.Logger
	algorithms []cose.Algorithm
	configured bool

	// attempts is failure accounting, surfaced to the host for
	// statistics. With a property manager the counts are persisted per
	// account; otherwise they are process-local. The engine never
	// locks anyone out.
	attemptsMu sync.Mutex
	attempts   map[string]int
}

// attemptsKey is the per-account property holding the failed
// authentication attempt count.
const attemptsKey = "attempts"

// ServiceParams contains dependencies for creating a WebAuthn service.
type ServiceParams struct {
	// Config is the WebAuthn configuration (required).
	Config *Config

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// OptionsStore holds pending ceremony options (required).
	OptionsStore OptionsStore

	// FormatRegistry verifies attestation statements. If nil, a
	// registry with the standard formats is used.
	FormatRegistry *protocol.FormatRegistry

	// JWTGenerator is an optional token generator for post-auth
	// tokens. If nil, FinishAuthentication returns an empty token.
	JWTGenerator JWTGenerator

	// Properties optionally persists failed-attempt counts so they
	// survive restarts. If nil, counts are kept in memory.
	Properties PropertyManager

	// Logger is the structured logger. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewService creates a new WebAuthn service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.OptionsStore == nil {
		return nil, fmt.Errorf("options store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	algorithms, err := params.Config.AlgorithmList()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry := params.FormatRegistry
	if registry == nil {
		registry = protocol.NewFormatRegistry()
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:     params.Config,
		creds:      params.CredentialStore,
		options:    params.OptionsStore,
		registry:   registry,
		jwtGen:     params.JWTGenerator,
		props:      params.Properties,
		logger:     logger,
		algorithms: algorithms,
		attempts:   make(map[string]int),
		configured: true,
	}, nil
}

// StartRegistration begins a registration ceremony for the user and
// returns the creation options to send to the client. Issuing new
// options invalidates any earlier pending registration.
func (s *Service) StartRegistration(ctx context.Context, user User) (*protocol.CredentialCreationOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	existing, err := s.creds.GetByUserHandle(ctx, user.Handle())
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	excludeList := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		excludeList[i] = cred.Descriptor()
	}

	opts, err := protocol.NewCreationOptions(protocol.CreationParams{
		RPID:               s.config.RPID,
		RPDisplayName:      s.config.RPDisplayName,
		User:               user.Entity(),
		Algorithms:         s.algorithms,
		Timeout:            s.config.Timeout,
		ExcludeCredentials: excludeList,
		Attachment:         s.config.attachment(),
		UserVerification:   s.config.userVerificationRequirement(),
		Attestation:        s.config.conveyancePreference(),
	})
	if err != nil {
		return nil, WrapError("create options", err)
	}

	pending := &PendingOptions{
		Ceremony:         protocol.CreateCeremony,
		Challenge:        opts.Challenge,
		UserHandle:       user.Handle(),
		UserVerification: s.config.userVerificationRequirement(),
		CreatedAt:        time.Now().Unix(),
	}
	if err := s.options.Save(ctx, pending); err != nil {
		return nil, WrapError("save pending options", err)
	}

	s.logger.Debug("registration started",
		"user", string(user.Handle()),
		"exclusions", len(excludeList))
	return opts, nil
}

// FinishRegistration completes a registration ceremony. The raw
// response is the JSON envelope produced by the client; description
// and icon are the user-chosen credential metadata. On success the
// new credential source is persisted and returned.
func (s *Service) FinishRegistration(ctx context.Context, user User, response []byte, description, icon string) (*CredentialSource, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	start := time.Now()

	cred, err := s.finishRegistration(ctx, user, response, description, icon)
	s.recordCeremony(metrics.CeremonyRegistration, user, err, time.Since(start))
	return cred, err
}

func (s *Service) finishRegistration(ctx context.Context, user User, response []byte, description, icon string) (*CredentialSource, error) {
	pending, err := s.options.Consume(ctx, user.Handle(), protocol.CreateCeremony)
	if err != nil {
		return nil, WrapError("consume pending options", err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return nil, WrapError("parse registration response", err)
	}

	attested, err := s.registry.VerifyAttestation(parsed, protocol.AttestationExpectations{
		Challenge:               protocol.Challenge(pending.Challenge),
		RPID:                    s.config.RPID,
		Origins:                 s.config.RPOrigins,
		SecuredRPIDs:            s.config.SecuredRPIDs,
		RequireUserVerification: pending.UserVerification == protocol.VerificationRequired,
		Algorithms:              s.algorithms,
	})
	if err != nil {
		return nil, WrapError("verify attestation", err)
	}

	// Duplicate check runs against storage, after the pure
	// verification succeeded.
	if _, err := s.creds.GetByCredentialID(ctx, attested.ID); err == nil {
		return nil, NewError("save credential", ErrDuplicateCredential)
	} else if !errors.Is(err, ErrUnknownCredential) {
		return nil, WrapError("check duplicate credential", err)
	}

	cred := newCredentialSource(user, attested, description, icon, time.Now())
	if err := s.creds.Save(ctx, cred); err != nil {
		return nil, WrapError("save credential", err)
	}

	s.logger.Info("credential registered",
		"user", string(user.Handle()),
		"credential", cred.ID.String(),
		"attestation", cred.AttestationType)
	return cred, nil
}

// StartAuthentication begins an authentication ceremony for the user
// and returns the request options to send to the client.
func (s *Service) StartAuthentication(ctx context.Context, user User) (*protocol.CredentialRequestOptions, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	creds, err := s.creds.GetByUserHandle(ctx, user.Handle())
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	allowList := make([]protocol.CredentialDescriptor, len(creds))
	allowedIDs := make([]protocol.URLEncodedBase64, len(creds))
	for i, cred := range creds {
		allowList[i] = cred.Descriptor()
		allowedIDs[i] = cred.ID
	}

	opts, err := protocol.NewRequestOptions(protocol.RequestParams{
		RPID:             s.config.RPID,
		AllowCredentials: allowList,
		Timeout:          s.config.Timeout,
		UserVerification: s.config.userVerificationRequirement(),
	})
	if err != nil {
		return nil, WrapError("create options", err)
	}

	pending := &PendingOptions{
		Ceremony:             protocol.GetCeremony,
		Challenge:            opts.Challenge,
		UserHandle:           user.Handle(),
		UserVerification:     s.config.userVerificationRequirement(),
		AllowedCredentialIDs: allowedIDs,
		CreatedAt:            time.Now().Unix(),
	}
	if err := s.options.Save(ctx, pending); err != nil {
		return nil, WrapError("save pending options", err)
	}

	s.logger.Debug("authentication started",
		"user", string(user.Handle()),
		"allowed", len(allowList))
	return opts, nil
}

// FinishAuthentication completes an authentication ceremony. On
// success the credential's sign counter and usage timestamps are
// persisted and a token is returned when a JWT generator is
// configured. Failed verifications increment the account's attempt
// counter.
func (s *Service) FinishAuthentication(ctx context.Context, user User, response []byte) (string, *CredentialSource, error) {
	if !s.configured {
		return "", nil, ErrNotConfigured
	}
	start := time.Now()

	token, cred, err := s.finishAuthentication(ctx, user, response)
	s.recordCeremony(metrics.CeremonyAuthentication, user, err, time.Since(start))
	return token, cred, err
}

func (s *Service) finishAuthentication(ctx context.Context, user User, response []byte) (string, *CredentialSource, error) {
	pending, err := s.options.Consume(ctx, user.Handle(), protocol.GetCeremony)
	if err != nil {
		return "", nil, WrapError("consume pending options", err)
	}

	parsed, err := protocol.ParseCredentialAssertionResponseBody(response)
	if err != nil {
		s.bumpAttempts(ctx, user)
		return "", nil, WrapError("parse authentication response", err)
	}

	if !credentialAllowed(parsed.ID, pending.AllowedCredentialIDs) {
		s.bumpAttempts(ctx, user)
		return "", nil, NewError("verify assertion", ErrUnknownCredential)
	}

	cred, err := s.creds.GetByCredentialID(ctx, parsed.ID)
	if err != nil {
		s.bumpAttempts(ctx, user)
		return "", nil, WrapError("get credential", err)
	}
	if !bytes.Equal(cred.UserHandle, user.Handle()) {
		s.bumpAttempts(ctx, user)
		return "", nil, NewError("verify assertion", ErrUnknownCredential)
	}

	newCount, err := protocol.VerifyAssertion(parsed, protocol.AssertionExpectations{
		Challenge:               protocol.Challenge(pending.Challenge),
		RPID:                    s.config.RPID,
		Origins:                 s.config.RPOrigins,
		SecuredRPIDs:            s.config.SecuredRPIDs,
		RequireUserVerification: pending.UserVerification == protocol.VerificationRequired,
		CredentialID:            cred.ID,
		PublicKey:               cred.PublicKey,
		UserHandle:              user.Handle(),
		StoredSignCount:         cred.SignCount,
	})
	if err != nil {
		s.bumpAttempts(ctx, user)
		return "", nil, WrapError("verify assertion", err)
	}

	now := time.Now()
	cred.SignCount = newCount
	cred.UpdatedAt = now.Unix()
	cred.LastUsedAt = now.Unix()
	if err := s.creds.Update(ctx, cred); err != nil {
		return "", nil, WrapError("update credential", err)
	}

	var token string
	if s.jwtGen != nil {
		token, err = s.jwtGen.GenerateToken(ctx, user)
		if err != nil {
			return "", nil, WrapError("generate token", err)
		}
	}

	s.logger.Info("authentication succeeded",
		"user", string(user.Handle()),
		"credential", cred.ID.String(),
		"sign_count", newCount)
	return token, cred, nil
}

// Credentials returns the account's registered credential sources.
func (s *Service) Credentials(ctx context.Context, user User) ([]*CredentialSource, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.creds.GetByUserHandle(ctx, user.Handle())
}

// RemoveCredential removes one of the account's credentials. Removal
// is idempotent at this level: a credential that is already gone is a
// no-op, even though the stores report ErrUnknownCredential for
// missing IDs. Callers that need the strict behavior can go through
// the CredentialStore directly. Removing the last credential
// deactivates the method for the account.
func (s *Service) RemoveCredential(ctx context.Context, user User, credID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}

	cred, err := s.creds.GetByCredentialID(ctx, credID)
	if errors.Is(err, ErrUnknownCredential) {
		return nil
	}
	if err != nil {
		return WrapError("get credential", err)
	}
	if !bytes.Equal(cred.UserHandle, user.Handle()) {
		return NewError("remove credential", ErrUnknownCredential)
	}

	if err := s.creds.Delete(ctx, credID); err != nil {
		if errors.Is(err, ErrUnknownCredential) {
			return nil
		}
		return WrapError("delete credential", err)
	}

	remaining, err := s.creds.GetByUserHandle(ctx, user.Handle())
	if err != nil {
		return WrapError("get credentials", err)
	}
	if len(remaining) == 0 {
		return s.Deactivate(ctx, user)
	}

	s.logger.Info("credential removed",
		"user", string(user.Handle()),
		"remaining", len(remaining))
	return nil
}

// IsActive reports whether the account has at least one registered
// credential.
func (s *Service) IsActive(ctx context.Context, user User) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}
	creds, err := s.creds.GetByUserHandle(ctx, user.Handle())
	if err != nil {
		return false, WrapError("get credentials", err)
	}
	return len(creds) > 0, nil
}

// Deactivate removes all of the account's credentials, pending
// ceremonies, and attempt accounting.
func (s *Service) Deactivate(ctx context.Context, user User) error {
	if !s.configured {
		return ErrNotConfigured
	}

	if err := s.creds.DeleteByUserHandle(ctx, user.Handle()); err != nil {
		return WrapError("delete credentials", err)
	}
	if err := s.options.DeleteByUserHandle(ctx, user.Handle()); err != nil {
		return WrapError("delete pending options", err)
	}

	s.attemptsMu.Lock()
	delete(s.attempts, hex.EncodeToString(user.Handle()))
	s.attemptsMu.Unlock()
	if s.props != nil {
		if err := s.props.Set(ctx, user.Handle(), attemptsKey, nil); err != nil {
			return WrapError("delete attempt count", err)
		}
	}

	s.logger.Info("webauthn deactivated", "user", string(user.Handle()))
	return nil
}

// Attempts returns the number of failed authentication attempts
// recorded for the account. With a property manager the count spans
// restarts; otherwise it covers the current process only. Statistics
// only; the engine never locks accounts.
func (s *Service) Attempts(ctx context.Context, user User) int {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	if s.props != nil {
		return s.readAttempts(ctx, user.Handle())
	}
	return s.attempts[hex.EncodeToString(user.Handle())]
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

func (s *Service) bumpAttempts(ctx context.Context, user User) {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	if s.props == nil {
		s.attempts[hex.EncodeToString(user.Handle())]++
		return
	}
	next := s.readAttempts(ctx, user.Handle()) + 1
	if err := s.props.Set(ctx, user.Handle(), attemptsKey, []byte(strconv.Itoa(next))); err != nil {
		s.logger.Warn("persist attempt count",
			"user", string(user.Handle()),
			"error", err.Error())
	}
}

// readAttempts loads the persisted attempt count. Callers hold
// attemptsMu.
func (s *Service) readAttempts(ctx context.Context, handle []byte) int {
	raw, err := s.props.Get(ctx, handle, attemptsKey)
	if err != nil || len(raw) == 0 {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

func (s *Service) recordCeremony(ceremony string, user User, err error, elapsed time.Duration) {
	if err == nil {
		metrics.RecordCeremony(ceremony, metrics.ResultSuccess, elapsed.Seconds())
		return
	}
	metrics.RecordCeremony(ceremony, metrics.ResultFailure, elapsed.Seconds())
	metrics.RecordFailure(ceremony, failureKind(err))

	switch {
	case IsReplayDetected(err):
		metrics.RecordReplayDetection()
		s.logger.Warn("replay detected",
			"user", string(user.Handle()),
			"error", err.Error())
	case IsSignatureInvalid(err):
		s.logger.Warn("signature verification failed",
			"user", string(user.Handle()),
			"error", err.Error())
	default:
		s.logger.Debug("ceremony failed",
			"ceremony", ceremony,
			"user", string(user.Handle()),
			"error", err.Error())
	}
}

// failureKind maps verification errors onto stable metric label
// values.
func failureKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, protocol.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, protocol.ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, protocol.ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, protocol.ErrRpIdMismatch):
		return "rpid_mismatch"
	case errors.Is(err, protocol.ErrCeremonyMismatch):
		return "ceremony_mismatch"
	case errors.Is(err, protocol.ErrUserMismatch):
		return "user_mismatch"
	case errors.Is(err, protocol.ErrUserNotPresent):
		return "user_not_present"
	case errors.Is(err, protocol.ErrUserNotVerified):
		return "user_not_verified"
	case errors.Is(err, protocol.ErrUnsupportedAttestationFormat):
		return "unsupported_format"
	case errors.Is(err, protocol.ErrAttestationFormat):
		return "attestation_invalid"
	case errors.Is(err, protocol.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, cose.ErrUnsupportedAlgorithm):
		return "unsupported_algorithm"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrUnknownCredential):
		return "unknown_credential"
	default:
		return "internal"
	}
}

func credentialAllowed(credID []byte, allowed []protocol.URLEncodedBase64) bool {
	for _, id := range allowed {
		if bytes.Equal(credID, id) {
			return true
		}
	}
	return false
}
