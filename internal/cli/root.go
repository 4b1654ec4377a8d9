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

// Package cli implements the webauthn-server command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// configFile is the --config flag, shared by all commands.
	configFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "webauthn-server",
	Short: "WebAuthn relying party server",
	Long: `webauthn-server hosts a WebAuthn (FIDO2) relying party over HTTP.

It exposes registration and authentication ceremonies, credential
management, health, and Prometheus metrics endpoints. Configuration
comes from a YAML file plus WEBAUTHN_* environment overrides.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is built-in defaults plus WEBAUTHN_* env vars)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
