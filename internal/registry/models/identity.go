package models

import (
	"strings"
	"time"

	"attest/internal/registry/reputation"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// Identity is the aggregate root for a principal's self-owned record.
//
// Invariants:
//   - Name and Email are non-empty
//   - ReputationScore stays within [0, reputation.MaxScore] after every mutation
//   - CreatedAt is immutable after construction
//   - LastUpdated is monotonically non-decreasing
//   - Identities are created at most once per principal and never deleted;
//     there is intentionally no removal operation. If deletion is ever needed
//     it must be modeled as a tombstone state so credential indices stay stable.
type Identity struct {
	Principal       id.Principal `json:"principal"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	ProfileHash     string       `json:"profile_hash,omitempty"`
	ReputationScore int          `json:"reputation_score"`
	Verified        bool         `json:"verified"`
	CreatedAt       time.Time    `json:"created_at"`
	LastUpdated     time.Time    `json:"last_updated"`
}

// NewIdentity constructs an identity with the starting reputation score.
// ProfileHash is an opaque reference to an off-chain payload and may be empty.
func NewIdentity(principal id.Principal, name, email, profileHash string, now time.Time) (*Identity, error) {
	if err := validateProfile(name, email); err != nil {
		return nil, err
	}
	return &Identity{
		Principal:       principal,
		Name:            strings.TrimSpace(name),
		Email:           strings.TrimSpace(email),
		ProfileHash:     profileHash,
		ReputationScore: reputation.InitialScore,
		Verified:        false,
		CreatedAt:       now,
		LastUpdated:     now,
	}, nil
}

// ApplyProfileUpdate overwrites the display fields. The profile hash is
// replaced wholesale, including with an empty value.
func (i *Identity) ApplyProfileUpdate(name, email, profileHash string, now time.Time) error {
	if err := validateProfile(name, email); err != nil {
		return err
	}
	i.Name = strings.TrimSpace(name)
	i.Email = strings.TrimSpace(email)
	i.ProfileHash = profileHash
	i.touch(now)
	return nil
}

// ApplyVerification flips the verified flag. Reputation consequences are the
// caller's responsibility so the scoring rules live in one place.
func (i *Identity) ApplyVerification(verified bool, now time.Time) {
	i.Verified = verified
	i.touch(now)
}

// ApplyReputation records a clamped score computed by the reputation engine.
func (i *Identity) ApplyReputation(score int, now time.Time) {
	i.ReputationScore = score
	i.touch(now)
}

// touch bumps LastUpdated while preserving the non-decreasing invariant even
// when callers hand in a stale clock.
func (i *Identity) touch(now time.Time) {
	if now.After(i.LastUpdated) {
		i.LastUpdated = now
	}
}

func validateProfile(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "identity name cannot be empty")
	}
	if strings.TrimSpace(email) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "identity email cannot be empty")
	}
	return nil
}
