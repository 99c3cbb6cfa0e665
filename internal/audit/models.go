package audit

import (
	"time"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: identity creation, credential issuance and revocation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: issuer-set changes, verification flips.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with shorter retention.
	// Examples: reputation recomputations.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from registry mutations to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. The registry treats the
// audit log as append-only: events are never updated or deleted.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	Category  EventCategory `json:"category"`
	// Principal is the identity the event is about.
	Principal id.Principal `json:"principal"`
	// Actor is the caller that performed the action, when different from
	// Principal (issuer operations, owner operations).
	Actor id.Principal `json:"actor,omitempty"`
	// CredentialIndex is only meaningful for credential events.
	CredentialIndex int `json:"credential_index,omitempty"`
	// Score is only meaningful for reputation events; it carries the score
	// after clamping.
	Score int `json:"score,omitempty"`
}

// Action names a registry audit event.
type Action string

const (
	EventIdentityCreated      Action = "identity_created"
	EventIdentityUpdated      Action = "identity_updated"
	EventCredentialAdded      Action = "credential_added"
	EventCredentialRevoked    Action = "credential_revoked"
	EventTrustedIssuerAdded   Action = "trusted_issuer_added"
	EventTrustedIssuerRemoved Action = "trusted_issuer_removed"
	EventReputationUpdated    Action = "reputation_updated"
)

// eventCategories maps each audit action to its category.
var eventCategories = map[Action]EventCategory{
	EventIdentityCreated:   CategoryCompliance,
	EventCredentialAdded:   CategoryCompliance,
	EventCredentialRevoked: CategoryCompliance,

	EventIdentityUpdated:      CategorySecurity,
	EventTrustedIssuerAdded:   CategorySecurity,
	EventTrustedIssuerRemoved: CategorySecurity,

	EventReputationUpdated: CategoryOperations,
}

// Category returns the category for an action, defaulting to operations for
// unknown actions so routing never drops an event.
func (a Action) Category() EventCategory {
	if c, ok := eventCategories[a]; ok {
		return c
	}
	return CategoryOperations
}
