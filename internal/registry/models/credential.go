package models

import (
	"strings"
	"time"

	dErrors "attest/pkg/domain-errors"
)

// UnknownIssuer is the display-name sentinel recorded when the issuing
// principal has no identity of its own at issuance time.
const UnknownIssuer = "Unknown Issuer"

// Credential is a typed, time-bounded, revocable claim about a subject
// principal. It lives inside the subject's ordered credential sequence; its
// index in that sequence is its stable identifier.
//
// Invariants:
//   - CredentialType and CredentialHash are non-empty
//   - IssuedAt is immutable; ExpiresAt is either zero (never expires) or
//     strictly after IssuedAt
//   - Valid starts true and is only ever set false by revocation; it never
//     reverts to true
//
// The Issuer field is a display-name snapshot captured at issuance, not a
// live reference: later renames of the issuer's identity do not rewrite
// already-issued credentials.
type Credential struct {
	CredentialType string    `json:"credential_type"`
	Issuer         string    `json:"issuer"`
	CredentialHash string    `json:"credential_hash"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
	Valid          bool      `json:"valid"`
}

// NewCredential constructs a valid credential. A zero expiresAt means the
// credential never expires; a nonzero one must be strictly in the future
// relative to issuance.
func NewCredential(credentialType, issuerName, credentialHash string, issuedAt, expiresAt time.Time) (*Credential, error) {
	if strings.TrimSpace(credentialType) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential type cannot be empty")
	}
	if strings.TrimSpace(credentialHash) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential hash cannot be empty")
	}
	if !expiresAt.IsZero() && !expiresAt.After(issuedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential expiry must be strictly after issuance")
	}
	if issuerName == "" {
		issuerName = UnknownIssuer
	}
	return &Credential{
		CredentialType: credentialType,
		Issuer:         issuerName,
		CredentialHash: credentialHash,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		Valid:          true,
	}, nil
}

// Revoke marks the credential invalid. Revoking an already-revoked credential
// is accepted: the registry deliberately re-applies the reputation penalty and
// re-emits the revocation event each time.
func (c *Credential) Revoke() {
	c.Valid = false
}

// IsValidAt computes effective validity: a credential is valid when it has not
// been revoked and has not expired as of now. Expiration is computed, never
// stored as a separate flag.
func (c *Credential) IsValidAt(now time.Time) bool {
	return c.Valid && (c.ExpiresAt.IsZero() || c.ExpiresAt.After(now))
}
