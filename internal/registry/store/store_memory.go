package store

import (
	"context"
	"fmt"
	"sync"

	"attest/internal/registry/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// In-memory stores back tests and single-node deployments. They store values
// and hand out copies so callers always work against a committed snapshot;
// mutations only land via Create/Save/Append.

type InMemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[id.Principal]models.Identity
}

func NewInMemoryIdentityStore() *InMemoryIdentityStore {
	return &InMemoryIdentityStore{identities: make(map[id.Principal]models.Identity)}
}

func (s *InMemoryIdentityStore) Create(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Principal]; ok {
		return fmt.Errorf("identity for %q already exists: %w", identity.Principal, sentinel.ErrConflict)
	}
	s.identities[identity.Principal] = *identity
	return nil
}

func (s *InMemoryIdentityStore) FindByPrincipal(_ context.Context, principal id.Principal) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[principal]
	if !ok {
		return nil, fmt.Errorf("identity for %q: %w", principal, sentinel.ErrNotFound)
	}
	return &identity, nil
}

func (s *InMemoryIdentityStore) Save(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Principal]; !ok {
		return fmt.Errorf("identity for %q: %w", identity.Principal, sentinel.ErrNotFound)
	}
	s.identities[identity.Principal] = *identity
	return nil
}

func (s *InMemoryIdentityStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities), nil
}

type InMemoryCredentialStore struct {
	mu          sync.RWMutex
	sequences   map[id.Principal][]models.Credential
	totalIssued int
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{sequences: make(map[id.Principal][]models.Credential)}
}

func (s *InMemoryCredentialStore) Append(_ context.Context, subject id.Principal, credential *models.Credential) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := len(s.sequences[subject])
	s.sequences[subject] = append(s.sequences[subject], *credential)
	s.totalIssued++
	return index, nil
}

func (s *InMemoryCredentialStore) Find(_ context.Context, subject id.Principal, index int) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sequence := s.sequences[subject]
	if index < 0 || index >= len(sequence) {
		return nil, fmt.Errorf("credential %d of %q: %w", index, subject, sentinel.ErrOutOfRange)
	}
	credential := sequence[index]
	return &credential, nil
}

func (s *InMemoryCredentialStore) Save(_ context.Context, subject id.Principal, index int, credential *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sequence := s.sequences[subject]
	if index < 0 || index >= len(sequence) {
		return fmt.Errorf("credential %d of %q: %w", index, subject, sentinel.ErrOutOfRange)
	}
	sequence[index] = *credential
	return nil
}

func (s *InMemoryCredentialStore) List(_ context.Context, subject id.Principal) ([]models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Credential{}, s.sequences[subject]...), nil
}

func (s *InMemoryCredentialStore) Count(_ context.Context, subject id.Principal) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sequences[subject]), nil
}

func (s *InMemoryCredentialStore) CountAll(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalIssued, nil
}

type InMemoryIssuerStore struct {
	mu      sync.RWMutex
	issuers map[id.Principal]bool
}

func NewInMemoryIssuerStore() *InMemoryIssuerStore {
	return &InMemoryIssuerStore{issuers: make(map[id.Principal]bool)}
}

func (s *InMemoryIssuerStore) Add(_ context.Context, principal id.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuers[principal] = true
	return nil
}

func (s *InMemoryIssuerStore) Remove(_ context.Context, principal id.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issuers, principal)
	return nil
}

func (s *InMemoryIssuerStore) IsTrusted(_ context.Context, principal id.Principal) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issuers[principal], nil
}
