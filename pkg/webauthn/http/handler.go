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

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/webauthn"
)

// maxBodyBytes caps request bodies. Authenticator responses with
// attestation certificate chains stay well under this.
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for WebAuthn operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *webauthn.Service
	logger  *slog.Logger
}

// NewHandler creates a new WebAuthn HTTP handler.
func NewHandler(service *webauthn.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "user": {"login_type": "BE", "uid": 12, "name": "alice"}
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if !validUser(req.User) {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid are required")
		return
	}

	options, err := h.service.StartRegistration(r.Context(), req.User.User())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Request body:
//
//	{
//	    "user": {"login_type": "BE", "uid": 12},
//	    "description": "YubiKey 5C",
//	    "response": { ...credential creation envelope... }
//	}
//
// Response: RegistrationResponse with the stored credential summary.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req FinishRegistrationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if !validUser(req.User) {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid are required")
		return
	}
	if len(req.Response) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "response is required")
		return
	}

	cred, err := h.service.FinishRegistration(r.Context(), req.User.User(), req.Response, req.Description, req.Icon)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		Credential: credentialSummary(cred),
	})
}

// BeginAuthentication handles POST /authentication/begin
//
// Request body:
//
//	{
//	    "user": {"login_type": "BE", "uid": 12}
//	}
//
// Response: WebAuthn PublicKeyCredentialRequestOptions
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if !validUser(req.User) {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid are required")
		return
	}

	options, err := h.service.StartAuthentication(r.Context(), req.User.User())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// FinishAuthentication handles POST /authentication/finish
//
// Request body:
//
//	{
//	    "user": {"login_type": "BE", "uid": 12},
//	    "response": { ...credential assertion envelope... }
//	}
//
// Response: AuthResponse with optional token and credential summary.
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req FinishAuthenticationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if !validUser(req.User) {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid are required")
		return
	}
	if len(req.Response) == 0 {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "response is required")
		return
	}

	token, cred, err := h.service.FinishAuthentication(r.Context(), req.User.User(), req.Response)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Token:      token,
		Credential: credentialSummary(cred),
	})
}

// ListCredentials handles GET /credentials
//
// Query params: login_type, uid
// Response: list of CredentialSummary
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	user, ok := userFromQuery(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid query params are required")
		return
	}

	creds, err := h.service.Credentials(r.Context(), user.User())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	summaries := make([]CredentialSummary, len(creds))
	for i, cred := range creds {
		summaries[i] = credentialSummary(cred)
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// RemoveCredential handles DELETE /credentials/{id}
//
// The credential ID is the base64url-encoded ID from the path (or an
// "id" query param when the router cannot carry path params).
// Query params: login_type, uid
// Response: 204 No Content. Removing an already-removed credential
// succeeds.
func (h *Handler) RemoveCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	user, ok := userFromQuery(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid query params are required")
		return
	}

	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		idStr = path.Base(r.URL.Path)
	}
	if idStr == "" || idStr == "credentials" || idStr == "/" || idStr == "." {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential id is required")
		return
	}
	credID, err := base64.RawURLEncoding.DecodeString(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential id encoding")
		return
	}

	if err := h.service.RemoveCredential(r.Context(), user.User(), credID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /status
//
// Query params: login_type, uid
// Response: StatusResponse
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	user, ok := userFromQuery(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "login_type and uid query params are required")
		return
	}

	active, err := h.service.IsActive(r.Context(), user.User())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		Active:   active,
		Attempts: h.service.Attempts(r.Context(), user.User()),
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case webauthn.IsReplayDetected(err):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeReplayDetected, "sign counter did not advance")
	case webauthn.IsChallengeMismatch(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeMismatch, "no pending ceremony or challenge mismatch")
	case webauthn.IsDuplicateCredential(err):
		h.writeError(w, http.StatusConflict, ErrorCodeDuplicateCredential, "credential is already registered")
	case webauthn.IsUnknownCredential(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeUnknownCredential, "credential not found for this account")
	case errors.Is(err, webauthn.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "account has no registered credentials")
	case errors.Is(err, webauthn.ErrMalformedResponse):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid authenticator response")
	case isVerificationFailure(err):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	default:
		h.logger.Error("webauthn handler error", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// isVerificationFailure reports whether the error is any ceremony
// verification failure other than the ones with dedicated codes.
func isVerificationFailure(err error) bool {
	for _, sentinel := range []error{
		webauthn.ErrSignatureInvalid,
		webauthn.ErrOriginMismatch,
		webauthn.ErrRpIdMismatch,
		webauthn.ErrCeremonyMismatch,
		webauthn.ErrUserMismatch,
		webauthn.ErrUserNotPresent,
		webauthn.ErrUserNotVerified,
		webauthn.ErrUnsupportedAttestationFormat,
		webauthn.ErrAttestationFormat,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func validUser(u UserRef) bool {
	return u.LoginType != "" && u.UID != 0
}

func userFromQuery(r *http.Request) (UserRef, bool) {
	loginType := r.URL.Query().Get("login_type")
	uidStr := r.URL.Query().Get("uid")
	if loginType == "" || uidStr == "" {
		return UserRef{}, false
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil || uid == 0 {
		return UserRef{}, false
	}
	return UserRef{LoginType: loginType, UID: uid}, true
}

func credentialSummary(cred *webauthn.CredentialSource) CredentialSummary {
	return CredentialSummary{
		ID:          cred.ID.String(),
		Description: cred.Description,
		Icon:        cred.Icon,
		CreatedAt:   cred.CreatedAt,
		LastUsedAt:  cred.LastUsedAt,
		SignCount:   cred.SignCount,
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
