package service

import (
	"context"
	"errors"

	"attest/internal/audit"
	"attest/internal/registry/models"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Queries are open to any caller and serve the latest committed state. They
// take no per-principal lock: the stores hand out snapshots, and the identity
// read path goes through the cache when one is configured.

// GetIdentity returns the identity record for a principal.
func (s *Service) GetIdentity(ctx context.Context, principal id.Principal) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetIdentity")
	defer span.End()

	identity, err := s.cache.Get(ctx, principal, func(ctx context.Context) (*models.Identity, error) {
		return s.identities.FindByPrincipal(ctx, principal)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found for principal")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return identity, nil
}

// GetCredential returns the credential at index in the subject's sequence.
func (s *Service) GetCredential(ctx context.Context, subject id.Principal, index int) (*models.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetCredential")
	defer span.End()

	credential, err := s.credentials.Find(ctx, subject, index)
	if err != nil {
		if errors.Is(err, sentinel.ErrOutOfRange) {
			return nil, dErrors.New(dErrors.CodeIndexOutOfRange, "credential index out of range")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return credential, nil
}

// ListCredentials returns the subject's full credential sequence in issuance
// order. Subjects without an identity simply have an empty sequence.
func (s *Service) ListCredentials(ctx context.Context, subject id.Principal) ([]models.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "registry.ListCredentials")
	defer span.End()

	credentials, err := s.credentials.List(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return credentials, nil
}

// GetCredentialsCount returns the length of the subject's sequence.
func (s *Service) GetCredentialsCount(ctx context.Context, subject id.Principal) (int, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetCredentialsCount")
	defer span.End()

	count, err := s.credentials.Count(ctx, subject)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count credentials")
	}
	return count, nil
}

// IsCredentialValid reports effective validity at the current time. An
// out-of-range index is simply not a valid credential, never an error.
func (s *Service) IsCredentialValid(ctx context.Context, subject id.Principal, index int) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "registry.IsCredentialValid")
	defer span.End()

	credential, err := s.credentials.Find(ctx, subject, index)
	if err != nil {
		if errors.Is(err, sentinel.ErrOutOfRange) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	return credential.IsValidAt(requestcontext.Now(ctx)), nil
}

// IsTrustedIssuer reports trusted-issuer membership.
func (s *Service) IsTrustedIssuer(ctx context.Context, principal id.Principal) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "registry.IsTrustedIssuer")
	defer span.End()

	trusted, err := s.issuers.IsTrusted(ctx, principal)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check issuer trust")
	}
	return trusted, nil
}

// GetStats returns the registry-wide counters.
func (s *Service) GetStats(ctx context.Context) (models.RegistryStats, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetStats")
	defer span.End()

	identities, err := s.identities.Count(ctx)
	if err != nil {
		return models.RegistryStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count identities")
	}
	credentials, err := s.credentials.CountAll(ctx)
	if err != nil {
		return models.RegistryStats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count credentials")
	}
	return models.RegistryStats{TotalIdentities: identities, TotalCredentials: credentials}, nil
}

// GetAuditTrail returns the append-ordered audit events for one principal.
func (s *Service) GetAuditTrail(ctx context.Context, principal id.Principal) ([]audit.Event, error) {
	ctx, span := s.tracer.Start(ctx, "registry.GetAuditTrail")
	defer span.End()

	events, err := s.auditPublisher.ListByPrincipal(ctx, principal)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}
