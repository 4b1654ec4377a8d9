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
	"encoding/hex"
	"strings"
	"sync"
)

// MemoryCredentialStore is an in-memory implementation of
// CredentialStore. Suitable for single-process deployments and tests.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*CredentialSource
	byUser   map[string][]string
	idToUser map[string]string
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*CredentialSource),
		byUser:   make(map[string][]string),
		idToUser: make(map[string]string),
	}
}

// Save stores a new credential source.
func (s *MemoryCredentialStore) Save(ctx context.Context, cred *CredentialSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[credKey]; ok {
		return ErrDuplicateCredential
	}

	userKey := hex.EncodeToString(cred.UserHandle)
	copied := *cred
	s.byID[credKey] = &copied
	s.byUser[userKey] = append(s.byUser[userKey], credKey)
	s.idToUser[credKey] = userKey

	return nil
}

// GetByUserHandle retrieves all credential sources for an account.
func (s *MemoryCredentialStore) GetByUserHandle(ctx context.Context, userHandle []byte) ([]*CredentialSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userKey := hex.EncodeToString(userHandle)
	keys := s.byUser[userKey]
	result := make([]*CredentialSource, 0, len(keys))
	for _, credKey := range keys {
		if cred, ok := s.byID[credKey]; ok {
			copied := *cred
			result = append(result, &copied)
		}
	}
	return result, nil
}

// GetByCredentialID retrieves a credential source by its ID.
func (s *MemoryCredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*CredentialSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrUnknownCredential
	}
	copied := *cred
	return &copied, nil
}

// Update updates an existing credential source.
func (s *MemoryCredentialStore) Update(ctx context.Context, cred *CredentialSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[credKey]; !ok {
		return ErrUnknownCredential
	}
	copied := *cred
	s.byID[credKey] = &copied
	return nil
}

// Delete removes a credential source by its ID.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(credID)
	userKey, ok := s.idToUser[credKey]
	if !ok {
		return ErrUnknownCredential
	}

	delete(s.byID, credKey)
	delete(s.idToUser, credKey)

	keys := s.byUser[userKey]
	for i, k := range keys {
		if k == credKey {
			s.byUser[userKey] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(s.byUser[userKey]) == 0 {
		delete(s.byUser, userKey)
	}
	return nil
}

// DeleteByUserHandle removes all credential sources for an account.
func (s *MemoryCredentialStore) DeleteByUserHandle(ctx context.Context, userHandle []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userKey := hex.EncodeToString(userHandle)
	for _, credKey := range s.byUser[userKey] {
		delete(s.byID, credKey)
		delete(s.idToUser, credKey)
	}
	delete(s.byUser, userKey)
	return nil
}

// Count returns the total number of credential sources in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// MemoryOptionsStore is an in-memory implementation of OptionsStore.
type MemoryOptionsStore struct {
	mu      sync.Mutex
	pending map[string]*PendingOptions
}

// NewMemoryOptionsStore creates a new in-memory pending options store.
func NewMemoryOptionsStore() *MemoryOptionsStore {
	return &MemoryOptionsStore{
		pending: make(map[string]*PendingOptions),
	}
}

func optionsKey(userHandle []byte, ceremony string) string {
	return hex.EncodeToString(userHandle) + "/" + ceremony
}

// Save stores pending options, replacing any previous record for the
// account and ceremony type.
func (s *MemoryOptionsStore) Save(ctx context.Context, opts *PendingOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *opts
	s.pending[optionsKey(opts.UserHandle, opts.Ceremony)] = &copied
	return nil
}

// Consume atomically retrieves and deletes the pending options.
// Read and delete happen under one lock, so exactly one concurrent
// finish operation can obtain the record.
func (s *MemoryOptionsStore) Consume(ctx context.Context, userHandle []byte, ceremony string) (*PendingOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := optionsKey(userHandle, ceremony)
	opts, ok := s.pending[key]
	if !ok {
		return nil, ErrChallengeMismatch
	}
	delete(s.pending, key)
	return opts, nil
}

// DeleteByUserHandle drops all pending options for an account.
func (s *MemoryOptionsStore) DeleteByUserHandle(ctx context.Context, userHandle []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := hex.EncodeToString(userHandle) + "/"
	for key := range s.pending {
		if strings.HasPrefix(key, prefix) {
			delete(s.pending, key)
		}
	}
	return nil
}

// Count returns the number of pending ceremonies.
func (s *MemoryOptionsStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// MemoryPropertyManager is an in-memory implementation of
// PropertyManager, standing in for the host system's scoped
// key/value store in tests.
type MemoryPropertyManager struct {
	mu    sync.RWMutex
	props map[string]map[string][]byte
}

// NewMemoryPropertyManager creates a new in-memory property manager.
func NewMemoryPropertyManager() *MemoryPropertyManager {
	return &MemoryPropertyManager{
		props: make(map[string]map[string][]byte),
	}
}

// Get returns the value for key, or nil when absent.
func (m *MemoryPropertyManager) Get(ctx context.Context, userHandle []byte, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.props[hex.EncodeToString(userHandle)][key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Set stores value under key. A nil value deletes the key.
func (m *MemoryPropertyManager) Set(ctx context.Context, userHandle []byte, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userKey := hex.EncodeToString(userHandle)
	if value == nil {
		delete(m.props[userKey], key)
		if len(m.props[userKey]) == 0 {
			delete(m.props, userKey)
		}
		return nil
	}
	if m.props[userKey] == nil {
		m.props[userKey] = make(map[string][]byte)
	}
	m.props[userKey][key] = append([]byte(nil), value...)
	return nil
}

// Has reports whether key exists.
func (m *MemoryPropertyManager) Has(ctx context.Context, userHandle []byte, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.props[hex.EncodeToString(userHandle)][key]
	return ok, nil
}

// Keys lists the account's keys with the given prefix.
func (m *MemoryPropertyManager) Keys(ctx context.Context, userHandle []byte, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.props[hex.EncodeToString(userHandle)] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
