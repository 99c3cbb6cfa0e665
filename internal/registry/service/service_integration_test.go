//go:build integration

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/audit"
	"attest/internal/registry/cache"
	"attest/internal/registry/service"
	"attest/internal/registry/store"
	id "attest/pkg/domain"
	"attest/pkg/requestcontext"
	"attest/pkg/testutil/containers"
)

// Runs the full registry lifecycle against real Postgres stores with the
// Redis identity cache in front, the same wiring the server uses.
type RegistryIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	service  *service.Service
}

func TestRegistryIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RegistryIntegrationSuite))
}

func (s *RegistryIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redis = mgr.GetRedis(s.T())
}

func (s *RegistryIntegrationSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateAll(ctx))
	s.Require().NoError(s.redis.FlushAll(ctx))

	var err error
	s.service, err = service.New("acct:owner",
		store.NewPostgresIdentityStore(s.postgres.DB),
		store.NewPostgresCredentialStore(s.postgres.DB),
		store.NewPostgresIssuerStore(s.postgres.DB),
		service.WithAuditPublisher(audit.NewPublisher(audit.NewPostgresStore(s.postgres.DB))),
		service.WithIdentityCache(cache.New(s.redis.Client, time.Minute)),
	)
	s.Require().NoError(err)
}

func (s *RegistryIntegrationSuite) as(principal id.Principal) context.Context {
	return requestcontext.WithCaller(context.Background(), principal)
}

func (s *RegistryIntegrationSuite) TestLifecycle() {
	ctx := context.Background()

	_, err := s.service.CreateIdentity(s.as("acct:alice"), "Alice", "alice@example.com", "hash-1")
	s.Require().NoError(err)

	s.Require().NoError(s.service.AddTrustedIssuer(s.as("acct:owner"), "acct:issuer"))

	identity, err := s.service.VerifyIdentity(s.as("acct:issuer"), "acct:alice", true)
	s.Require().NoError(err)
	s.Equal(200, identity.ReputationScore)

	index, err := s.service.AddCredential(s.as("acct:issuer"), "acct:alice", "degree", "cred-hash", time.Time{})
	s.Require().NoError(err)
	s.Equal(0, index)

	s.Require().NoError(s.service.RevokeCredential(s.as("acct:issuer"), "acct:alice", index))

	// The cached read must reflect the post-revocation score, not a stale
	// entry from before the mutations.
	cached, err := s.service.GetIdentity(ctx, "acct:alice")
	s.Require().NoError(err)
	s.Equal(220, cached.ReputationScore)
	s.True(cached.Verified)

	valid, err := s.service.IsCredentialValid(ctx, "acct:alice", index)
	s.Require().NoError(err)
	s.False(valid)

	events, err := s.service.GetAuditTrail(ctx, "acct:alice")
	s.Require().NoError(err)
	s.Equal([]audit.Action{
		audit.EventIdentityCreated,
		audit.EventReputationUpdated,
		audit.EventIdentityUpdated,
		audit.EventReputationUpdated,
		audit.EventCredentialAdded,
		audit.EventReputationUpdated,
		audit.EventCredentialRevoked,
	}, actionsOf(events))

	stats, err := s.service.GetStats(ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalIdentities)
	s.Equal(1, stats.TotalCredentials)
}

func actionsOf(events []audit.Event) []audit.Action {
	actions := make([]audit.Action, 0, len(events))
	for _, event := range events {
		actions = append(actions, event.Action)
	}
	return actions
}
