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

// Package webauthn provides a WebAuthn (FIDO2) multi-factor
// authentication service that can be embedded in any Go application.
//
// The ceremony engine itself lives in pkg/protocol; this package adds
// the Relying Party service on top:
//   - Pluggable storage interfaces for credential sources and pending
//     ceremony options
//   - In-memory implementations plus a store backed by a host
//     system's scoped property manager
//   - Registration and authentication operations with replay
//     detection, attempt accounting, and activate/deactivate lifecycle
//   - Optional JWT generation after successful authentication
//   - A mock authenticator emitting raw wire-format responses for
//     end-to-end tests
//
// # Architecture
//
// The package is designed with a layered architecture:
//
//  1. Ceremony layer (pkg/protocol) - Pure verification logic
//  2. Service layer (Service) - Ceremony orchestration and persistence
//  3. Storage layer (CredentialStore, OptionsStore) - Pluggable persistence
//  4. HTTP layer (pkg/webauthn/http) - Composable HTTP handlers
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    CredentialStore: webauthn.NewMemoryCredentialStore(),
//	    OptionsStore:    webauthn.NewMemoryOptionsStore(),
//	})
//
// For production, implement the storage interfaces with your database,
// or wrap your platform's scoped key/value store with
// NewPropertyCredentialStore.
//
// # WebAuthn Specification Compliance
//
// This implementation follows the W3C Web Authentication specification:
//   - https://www.w3.org/TR/webauthn-2/
//   - https://www.w3.org/TR/webauthn-3/
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts; localhost is exempt.
package webauthn
