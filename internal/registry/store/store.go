package store

import (
	"context"

	"attest/internal/registry/models"
	id "attest/pkg/domain"
)

// Stores are interface-driven to keep the state machine testable and to allow
// swapping in-memory or external persistence without rewiring business code.
//
// Error Contract:
// All store methods follow this pattern:
//   - Return sentinel.ErrNotFound when the requested entity does not exist
//   - Return sentinel.ErrConflict when uniqueness would be violated
//   - Return sentinel.ErrOutOfRange for a credential index past the sequence end
//   - Return wrapped errors with context for infrastructure failures
//
// The service layer translates sentinels into domain error codes.

// IdentityStore maps each principal to at most one identity record.
type IdentityStore interface {
	// Create inserts a new identity, failing with sentinel.ErrConflict when
	// the principal already has one.
	Create(ctx context.Context, identity *models.Identity) error
	FindByPrincipal(ctx context.Context, principal id.Principal) (*models.Identity, error)
	// Save overwrites an existing identity record.
	Save(ctx context.Context, identity *models.Identity) error
	// Count returns the number of identities ever created. Identities are
	// never deleted, so this doubles as the registry's monotonic creation
	// counter.
	Count(ctx context.Context) (int, error)
}

// CredentialStore keeps an ordered, append-only sequence of credentials per
// subject. A credential's index in the sequence is its stable identifier.
type CredentialStore interface {
	// Append adds a credential to the end of the subject's sequence and
	// returns its stable index (the sequence length before the append).
	Append(ctx context.Context, subject id.Principal, credential *models.Credential) (int, error)
	Find(ctx context.Context, subject id.Principal, index int) (*models.Credential, error)
	// Save overwrites the credential at an existing index.
	Save(ctx context.Context, subject id.Principal, index int, credential *models.Credential) error
	List(ctx context.Context, subject id.Principal) ([]models.Credential, error)
	Count(ctx context.Context, subject id.Principal) (int, error)
	// CountAll returns the number of credentials ever issued across subjects.
	CountAll(ctx context.Context) (int, error)
}

// IssuerStore is the trusted-issuer membership set.
type IssuerStore interface {
	Add(ctx context.Context, principal id.Principal) error
	Remove(ctx context.Context, principal id.Principal) error
	IsTrusted(ctx context.Context, principal id.Principal) (bool, error)
}
