package service

import (
	"context"

	"attest/internal/audit"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// AddTrustedIssuer grants a principal the right to verify identities and
// issue or revoke credentials. Owner only. Adding an existing member is a
// no-op membership-wise but still emits the event.
func (s *Service) AddTrustedIssuer(ctx context.Context, issuer id.Principal) error {
	ctx, span := s.tracer.Start(ctx, "registry.AddTrustedIssuer")
	defer span.End()

	caller, err := s.requireOwner(ctx)
	if err != nil {
		return err
	}
	if issuer.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer principal cannot be empty")
	}
	now := requestcontext.Now(ctx)

	s.issuerMu.Lock()
	defer s.issuerMu.Unlock()

	if err := s.issuers.Add(ctx, issuer); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add trusted issuer")
	}
	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventTrustedIssuerAdded,
		Principal: issuer,
		Actor:     caller,
	}); err != nil {
		return err
	}

	s.logEvent(ctx, audit.EventTrustedIssuerAdded, "issuer", issuer.String())
	if s.metrics != nil {
		s.metrics.IssuerSetChanges.Inc()
	}
	return nil
}

// RemoveTrustedIssuer revokes a principal's issuer trust. Owner only. The
// owner's own entry can never be removed: ownership and issuer trust are
// tracked independently, and this guard protects the seeded owner membership.
func (s *Service) RemoveTrustedIssuer(ctx context.Context, issuer id.Principal) error {
	ctx, span := s.tracer.Start(ctx, "registry.RemoveTrustedIssuer")
	defer span.End()

	caller, err := s.requireOwner(ctx)
	if err != nil {
		return err
	}
	if issuer == s.owner {
		return dErrors.New(dErrors.CodeForbidden, "the registry owner cannot be removed from the trusted issuer set")
	}
	now := requestcontext.Now(ctx)

	s.issuerMu.Lock()
	defer s.issuerMu.Unlock()

	if err := s.issuers.Remove(ctx, issuer); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove trusted issuer")
	}
	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.EventTrustedIssuerRemoved,
		Principal: issuer,
		Actor:     caller,
	}); err != nil {
		return err
	}

	s.logEvent(ctx, audit.EventTrustedIssuerRemoved, "issuer", issuer.String())
	if s.metrics != nil {
		s.metrics.IssuerSetChanges.Inc()
	}
	return nil
}
