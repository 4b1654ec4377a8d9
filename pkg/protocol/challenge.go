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
	"crypto/rand"
	"fmt"
)

// ChallengeLength is the size in bytes of a ceremony challenge.
const ChallengeLength = 32

// Challenge is the random nonce binding a ceremony to its options.
type Challenge = URLEncodedBase64

// CreateChallenge returns a fresh 32-byte challenge from the
// operating system CSPRNG.
func CreateChallenge() (Challenge, error) {
	challenge := make([]byte, ChallengeLength)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("generating challenge: %w", err)
	}
	return challenge, nil
}
