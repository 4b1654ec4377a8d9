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
	"crypto/subtle"
	"net/url"
	"strings"
)

// Client data type values for the two ceremonies.
const (
	CreateCeremony = "webauthn.create"
	GetCeremony    = "webauthn.get"
)

// CollectedClientData is the JSON document the client signs over,
// binding the response to a ceremony, challenge, and origin.
type CollectedClientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin,omitempty"`
}

// Verify checks the client data against the expected ceremony type,
// pending challenge, and relying party origins. The challenge
// comparison is constant-time.
func (c *CollectedClientData) Verify(ceremony string, challenge Challenge, origins, securedRPIDs []string) error {
	if c.Type != ceremony {
		return verifyErr(ErrCeremonyMismatch, "type", "got %q, want %q", c.Type, ceremony)
	}

	expected := challenge.String()
	if subtle.ConstantTimeCompare([]byte(c.Challenge), []byte(expected)) != 1 {
		return verifyErr(ErrChallengeMismatch, "challenge", "response challenge does not match pending options")
	}

	if !originAllowed(c.Origin, origins, securedRPIDs) {
		return verifyErr(ErrOriginMismatch, "origin", "origin %q not allowed", c.Origin)
	}
	return nil
}

// originAllowed reports whether origin matches one of the configured
// origins exactly, or resolves to a host covered by the secured
// relying party IDs. A secured RP ID matches its own host and any
// subdomain of it.
func originAllowed(origin string, origins, securedRPIDs []string) bool {
	for _, o := range origins {
		if origin == o {
			return true
		}
	}
	if len(securedRPIDs) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	for _, rpID := range securedRPIDs {
		if host == rpID || strings.HasSuffix(host, "."+rpID) {
			return true
		}
	}
	return false
}
