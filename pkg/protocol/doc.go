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

// Package protocol implements the WebAuthn relying-party ceremony
// engine: challenge and options generation, response envelope
// loading, attestation statement verification (none, fido-u2f,
// packed, android-key, tpm, android-safetynet), and assertion
// verification with signature counter replay detection.
//
// The package is pure verification logic. It holds no storage and
// performs no network IO; callers supply pending challenges and
// stored credential material through the expectation structs and
// persist the results.
package protocol
