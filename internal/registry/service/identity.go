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

// CreateIdentity registers a self-owned identity for the calling principal.
// Any principal may call it, at most once: a second call fails with
// already_exists. The identity starts at the initial reputation score,
// unverified.
func (s *Service) CreateIdentity(ctx context.Context, name, email, profileHash string) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "registry.CreateIdentity")
	defer span.End()

	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	unlock := s.locks.acquire(caller)
	defer unlock()

	identity, err := models.NewIdentity(caller, name, email, profileHash, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		return nil, err
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeAlreadyExists, "identity already exists for principal")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity")
	}
	s.cache.Invalidate(ctx, caller)

	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventIdentityCreated,
		Principal: caller,
		Actor:     caller,
	}); err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventIdentityCreated, "principal", caller.String())
	if s.metrics != nil {
		s.metrics.IdentitiesCreated.Inc()
	}
	return identity, nil
}

// UpdateProfile overwrites the caller's display fields and profile hash.
// Self-only: a caller can never update another principal's profile.
func (s *Service) UpdateProfile(ctx context.Context, principal id.Principal, name, email, profileHash string) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "registry.UpdateProfile")
	defer span.End()

	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if caller != principal {
		return nil, dErrors.New(dErrors.CodeForbidden, "profile updates are restricted to the identity's own principal")
	}
	now := requestcontext.Now(ctx)

	unlock := s.locks.acquire(principal)
	defer unlock()

	identity, err := s.findIdentity(ctx, principal)
	if err != nil {
		return nil, err
	}
	if err := identity.ApplyProfileUpdate(name, email, profileHash, now); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		return nil, err
	}
	if err := s.saveIdentity(ctx, identity); err != nil {
		return nil, err
	}

	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventIdentityUpdated,
		Principal: principal,
		Actor:     caller,
	}); err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventIdentityUpdated, "principal", principal.String())
	return identity, nil
}

// VerifyIdentity sets or clears the subject's verified flag. Trusted issuers
// only. Verification grants a reputation bonus; clearing it applies a penalty.
// The reputation event fires on every invocation, even when clamping leaves
// the score unchanged.
func (s *Service) VerifyIdentity(ctx context.Context, subject id.Principal, verified bool) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "registry.VerifyIdentity")
	defer span.End()

	caller, err := s.requireTrustedIssuer(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	unlock := s.locks.acquire(subject)
	defer unlock()

	identity, err := s.findIdentity(ctx, subject)
	if err != nil {
		return nil, err
	}

	identity.ApplyVerification(verified, now)
	delta := reputation.DeltaVerified
	if !verified {
		delta = reputation.DeltaVerificationPulled
	}
	score := reputation.ApplyDelta(identity.ReputationScore, delta)
	identity.ApplyReputation(score, now)

	if err := s.saveIdentity(ctx, identity); err != nil {
		return nil, err
	}
	if err := s.emitReputation(ctx, subject, caller, score, now); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventIdentityUpdated,
		Principal: subject,
		Actor:     caller,
	}); err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventIdentityUpdated,
		"principal", subject.String(),
		"verified", verified,
		"score", score,
	)
	return identity, nil
}

// findIdentity loads an identity for mutation, translating store sentinels.
func (s *Service) findIdentity(ctx context.Context, principal id.Principal) (*models.Identity, error) {
	identity, err := s.identities.FindByPrincipal(ctx, principal)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found for principal")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return identity, nil
}

func (s *Service) saveIdentity(ctx context.Context, identity *models.Identity) error {
	if err := s.identities.Save(ctx, identity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save identity")
	}
	s.cache.Invalidate(ctx, identity.Principal)
	return nil
}

// emitReputation records a reputation engine invocation. It always fires,
// including when saturation left the score where it was.
func (s *Service) emitReputation(ctx context.Context, subject, actor id.Principal, score int, now time.Time) error {
	if s.metrics != nil {
		s.metrics.ReputationUpdates.Inc()
	}
	return s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventReputationUpdated,
		Principal: subject,
		Actor:     actor,
		Score:     score,
	})
}
