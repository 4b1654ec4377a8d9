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
	"fmt"
	"net/url"
	"strings"

	"github.com/jeremyhahn/go-mfa-webauthn/pkg/cose"
	"github.com/jeremyhahn/go-mfa-webauthn/pkg/protocol"
)

// Config configures the WebAuthn service.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// RPOrigins are the allowed origins for WebAuthn operations.
	// Example: []string{"https://example.com", "https://www.example.com"}
	RPOrigins []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// SecuredRPIDs are hosts whose subdomains count as trusted origins
	// even without an exact origin match. "localhost" is always
	// included so local development works over plain HTTP.
	SecuredRPIDs []string `yaml:"secured_ids" json:"secured_ids" mapstructure:"secured_ids"`

	// Timeout is the ceremony timeout hint in milliseconds sent to the
	// client. Default: 60000.
	Timeout int `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	// UserVerification specifies the user verification requirement.
	// Options: "required", "preferred", "discouraged"
	// Default: "discouraged" (second-factor use)
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct"
	// Default: "none"
	AttestationPreference string `yaml:"attestation" json:"attestation" mapstructure:"attestation"`

	// AuthenticatorAttachment limits the type of authenticators allowed.
	// Options: "platform", "cross-platform", "" (any)
	// Default: "" (any)
	AuthenticatorAttachment string `yaml:"authenticator_attachment" json:"authenticator_attachment" mapstructure:"authenticator_attachment"`

	// Algorithms is the ordered list of COSE algorithm names advertised
	// during registration. Default: RS256, RS512, PS256, PS512, ES256,
	// ES512, EdDSA.
	Algorithms []string `yaml:"algorithms" json:"algorithms" mapstructure:"algorithms"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}
	for _, origin := range c.RPOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid origin: %s", origin)
		}
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
		// Valid
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct":
		// Valid
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	switch c.AuthenticatorAttachment {
	case "", "platform", "cross-platform":
		// Valid
	default:
		return fmt.Errorf("invalid authenticator attachment: %s", c.AuthenticatorAttachment)
	}

	if _, err := c.AlgorithmList(); err != nil {
		return err
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = protocol.DefaultTimeout
	}
	if c.UserVerification == "" {
		c.UserVerification = "discouraged"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if !containsHost(c.SecuredRPIDs, "localhost") {
		c.SecuredRPIDs = append(c.SecuredRPIDs, "localhost")
	}
}

// AlgorithmList resolves the configured algorithm names to COSE
// identifiers, preserving order. An empty configuration yields the
// default preference list.
func (c *Config) AlgorithmList() ([]cose.Algorithm, error) {
	if len(c.Algorithms) == 0 {
		return cose.SupportedAlgorithms(), nil
	}
	byName := make(map[string]cose.Algorithm, len(cose.AllAlgorithms()))
	for _, alg := range cose.AllAlgorithms() {
		byName[strings.ToUpper(alg.String())] = alg
	}
	list := make([]cose.Algorithm, 0, len(c.Algorithms))
	for _, name := range c.Algorithms {
		alg, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown algorithm: %s", name)
		}
		list = append(list, alg)
	}
	return list, nil
}

// userVerificationRequirement maps the config string to the protocol
// enum.
func (c *Config) userVerificationRequirement() protocol.UserVerificationRequirement {
	switch c.UserVerification {
	case "required":
		return protocol.VerificationRequired
	case "preferred":
		return protocol.VerificationPreferred
	default:
		return protocol.VerificationDiscouraged
	}
}

func (c *Config) conveyancePreference() protocol.ConveyancePreference {
	switch c.AttestationPreference {
	case "indirect":
		return protocol.ConveyanceIndirect
	case "direct":
		return protocol.ConveyanceDirect
	default:
		return protocol.ConveyanceNone
	}
}

func (c *Config) attachment() protocol.AuthenticatorAttachment {
	switch c.AuthenticatorAttachment {
	case "platform":
		return protocol.Platform
	case "cross-platform":
		return protocol.CrossPlatform
	default:
		return ""
	}
}

func containsHost(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}
