package service

import (
	"context"
	"errors"
	"time"

	"attest/internal/audit"
	"attest/internal/registry/models"
	"attest/internal/registry/reputation"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// AddCredential issues a credential to a subject principal. Trusted issuers
// only; the subject must already hold an identity (no orphan credentials).
// The issuer's current display name is snapshotted into the credential, with
// an "Unknown Issuer" fallback when the issuer holds no identity itself.
// Returns the credential's stable index in the subject's sequence.
func (s *Service) AddCredential(ctx context.Context, subject id.Principal, credentialType, credentialHash string, expiresAt time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "registry.AddCredential")
	defer span.End()

	caller, err := s.requireTrustedIssuer(ctx)
	if err != nil {
		return 0, err
	}
	now := requestcontext.Now(ctx)

	unlock := s.locks.acquire(subject)
	defer unlock()

	identity, err := s.findIdentity(ctx, subject)
	if err != nil {
		return 0, err
	}

	credential, err := models.NewCredential(credentialType, s.issuerDisplayName(ctx, caller), credentialHash, now, expiresAt)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return 0, dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		return 0, err
	}

	index, err := s.credentials.Append(ctx, subject, credential)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append credential")
	}

	score := reputation.ApplyDelta(identity.ReputationScore, reputation.DeltaCredentialAdded)
	identity.ApplyReputation(score, now)
	if err := s.saveIdentity(ctx, identity); err != nil {
		return 0, err
	}

	if err := s.emitReputation(ctx, subject, caller, score, now); err != nil {
		return 0, err
	}
	if err := s.emit(ctx, audit.Event{
		Timestamp:       now,
		Action:          audit.EventCredentialAdded,
		Principal:       subject,
		Actor:           caller,
		CredentialIndex: index,
	}); err != nil {
		return 0, err
	}

	s.logEvent(ctx, audit.EventCredentialAdded,
		"subject", subject.String(),
		"issuer", caller.String(),
		"index", index,
		"credential_type", credentialType,
	)
	if s.metrics != nil {
		s.metrics.CredentialsIssued.Inc()
	}
	return index, nil
}

// RevokeCredential marks the credential at index invalid. Trusted issuers
// only. Revocation is not idempotence-guarded: revoking an already-revoked
// credential succeeds again, re-applies the reputation penalty, and re-emits
// the event. That matches the original contract and is deliberately preserved.
func (s *Service) RevokeCredential(ctx context.Context, subject id.Principal, index int) error {
	ctx, span := s.tracer.Start(ctx, "registry.RevokeCredential")
	defer span.End()

	caller, err := s.requireTrustedIssuer(ctx)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	unlock := s.locks.acquire(subject)
	defer unlock()

	credential, err := s.credentials.Find(ctx, subject, index)
	if err != nil {
		if errors.Is(err, sentinel.ErrOutOfRange) {
			return dErrors.New(dErrors.CodeIndexOutOfRange, "credential index out of range")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}

	credential.Revoke()
	if err := s.credentials.Save(ctx, subject, index, credential); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save credential")
	}

	// Credentials never exist without an identity, so a miss here is an
	// infrastructure fault, not a caller error.
	identity, err := s.findIdentity(ctx, subject)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "credential subject has no identity")
	}
	score := reputation.ApplyDelta(identity.ReputationScore, reputation.DeltaCredentialRevoked)
	identity.ApplyReputation(score, now)
	if err := s.saveIdentity(ctx, identity); err != nil {
		return err
	}

	if err := s.emitReputation(ctx, subject, caller, score, now); err != nil {
		return err
	}
	if err := s.emit(ctx, audit.Event{
		Timestamp:       now,
		Action:          audit.EventCredentialRevoked,
		Principal:       subject,
		Actor:           caller,
		CredentialIndex: index,
	}); err != nil {
		return err
	}

	s.logEvent(ctx, audit.EventCredentialRevoked,
		"subject", subject.String(),
		"issuer", caller.String(),
		"index", index,
	)
	if s.metrics != nil {
		s.metrics.CredentialsRevoked.Inc()
	}
	return nil
}

// issuerDisplayName snapshots the issuer's current identity name.
func (s *Service) issuerDisplayName(ctx context.Context, issuer id.Principal) string {
	identity, err := s.identities.FindByPrincipal(ctx, issuer)
	if err != nil {
		return models.UnknownIssuer
	}
	return identity.Name
}
