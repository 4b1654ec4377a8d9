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
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// credentialKeyPrefix scopes credential records inside an account's
// property space. One property per credential ID, so concurrent
// updates to different credentials never overwrite each other.
const credentialKeyPrefix = "credential/"

// ownerKeyPrefix scopes the reverse index mapping credential IDs to
// their owning account. The index lives under a reserved handle that
// no real account can produce.
const ownerKeyPrefix = "owner/"

var indexHandle = []byte("_webauthn/index")

// PropertyCredentialStore persists credential sources through the
// host system's scoped property store. Each credential is one JSON
// property under its owner's handle; a reverse index property maps
// credential IDs back to owners for ID-only lookups.
type PropertyCredentialStore struct {
	props PropertyManager
}

// NewPropertyCredentialStore creates a credential store backed by the
// given property manager.
func NewPropertyCredentialStore(props PropertyManager) *PropertyCredentialStore {
	return &PropertyCredentialStore{props: props}
}

func credentialKey(credID []byte) string {
	return credentialKeyPrefix + base64.RawURLEncoding.EncodeToString(credID)
}

func ownerKey(credID []byte) string {
	return ownerKeyPrefix + base64.RawURLEncoding.EncodeToString(credID)
}

// Save stores a new credential source.
func (s *PropertyCredentialStore) Save(ctx context.Context, cred *CredentialSource) error {
	exists, err := s.props.Has(ctx, indexHandle, ownerKey(cred.ID))
	if err != nil {
		return WrapError("check credential owner", err)
	}
	if exists {
		return ErrDuplicateCredential
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return WrapError("encode credential", err)
	}
	if err := s.props.Set(ctx, cred.UserHandle, credentialKey(cred.ID), payload); err != nil {
		return WrapError("store credential", err)
	}
	if err := s.props.Set(ctx, indexHandle, ownerKey(cred.ID), cred.UserHandle); err != nil {
		return WrapError("store credential owner", err)
	}
	return nil
}

// GetByUserHandle retrieves all credential sources for an account.
func (s *PropertyCredentialStore) GetByUserHandle(ctx context.Context, userHandle []byte) ([]*CredentialSource, error) {
	keys, err := s.props.Keys(ctx, userHandle, credentialKeyPrefix)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}

	result := make([]*CredentialSource, 0, len(keys))
	for _, key := range keys {
		payload, err := s.props.Get(ctx, userHandle, key)
		if err != nil {
			return nil, WrapError("load credential", err)
		}
		if payload == nil {
			continue
		}
		var cred CredentialSource
		if err := json.Unmarshal(payload, &cred); err != nil {
			return nil, WrapError("decode credential", fmt.Errorf("%s: %w", key, err))
		}
		result = append(result, &cred)
	}
	return result, nil
}

// GetByCredentialID retrieves a credential source by its ID.
func (s *PropertyCredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*CredentialSource, error) {
	owner, err := s.props.Get(ctx, indexHandle, ownerKey(credID))
	if err != nil {
		return nil, WrapError("resolve credential owner", err)
	}
	if owner == nil {
		return nil, ErrUnknownCredential
	}

	payload, err := s.props.Get(ctx, owner, credentialKey(credID))
	if err != nil {
		return nil, WrapError("load credential", err)
	}
	if payload == nil {
		return nil, ErrUnknownCredential
	}
	var cred CredentialSource
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, WrapError("decode credential", err)
	}
	return &cred, nil
}

// Update updates an existing credential source.
func (s *PropertyCredentialStore) Update(ctx context.Context, cred *CredentialSource) error {
	exists, err := s.props.Has(ctx, cred.UserHandle, credentialKey(cred.ID))
	if err != nil {
		return WrapError("check credential", err)
	}
	if !exists {
		return ErrUnknownCredential
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return WrapError("encode credential", err)
	}
	return WrapError("store credential", s.props.Set(ctx, cred.UserHandle, credentialKey(cred.ID), payload))
}

// Delete removes a credential source by its ID.
func (s *PropertyCredentialStore) Delete(ctx context.Context, credID []byte) error {
	owner, err := s.props.Get(ctx, indexHandle, ownerKey(credID))
	if err != nil {
		return WrapError("resolve credential owner", err)
	}
	if owner == nil {
		return ErrUnknownCredential
	}

	if err := s.props.Set(ctx, owner, credentialKey(credID), nil); err != nil {
		return WrapError("delete credential", err)
	}
	return WrapError("delete credential owner", s.props.Set(ctx, indexHandle, ownerKey(credID), nil))
}

// DeleteByUserHandle removes all credential sources for an account.
func (s *PropertyCredentialStore) DeleteByUserHandle(ctx context.Context, userHandle []byte) error {
	creds, err := s.GetByUserHandle(ctx, userHandle)
	if err != nil {
		return err
	}
	for _, cred := range creds {
		if err := s.props.Set(ctx, userHandle, credentialKey(cred.ID), nil); err != nil {
			return WrapError("delete credential", err)
		}
		if err := s.props.Set(ctx, indexHandle, ownerKey(cred.ID), nil); err != nil {
			return WrapError("delete credential owner", err)
		}
	}
	return nil
}
