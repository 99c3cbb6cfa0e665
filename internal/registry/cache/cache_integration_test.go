//go:build integration

package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/registry/cache"
	"attest/internal/registry/models"
	"attest/pkg/testutil/containers"
)

type IdentityCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestIdentityCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(IdentityCacheSuite))
}

func (s *IdentityCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *IdentityCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *IdentityCacheSuite) newIdentity() *models.Identity {
	identity, err := models.NewIdentity("acct:alice", "Alice", "alice@example.com", "", time.Now().UTC())
	s.Require().NoError(err)
	return identity
}

func (s *IdentityCacheSuite) TestReadThrough() {
	ctx := context.Background()
	c := cache.New(s.redis.Client, time.Minute)
	identity := s.newIdentity()

	var loads atomic.Int32
	load := func(context.Context) (*models.Identity, error) {
		loads.Add(1)
		return identity, nil
	}

	got, err := c.Get(ctx, "acct:alice", load)
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)
	s.Equal(int32(1), loads.Load())

	// Second read is served from Redis.
	got, err = c.Get(ctx, "acct:alice", load)
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)
	s.Equal(int32(1), loads.Load())
}

func (s *IdentityCacheSuite) TestInvalidateForcesReload() {
	ctx := context.Background()
	c := cache.New(s.redis.Client, time.Minute)
	identity := s.newIdentity()

	var loads atomic.Int32
	load := func(context.Context) (*models.Identity, error) {
		loads.Add(1)
		return identity, nil
	}

	_, err := c.Get(ctx, "acct:alice", load)
	s.Require().NoError(err)

	c.Invalidate(ctx, "acct:alice")

	_, err = c.Get(ctx, "acct:alice", load)
	s.Require().NoError(err)
	s.Equal(int32(2), loads.Load())
}

func (s *IdentityCacheSuite) TestLoaderErrorsAreNotCached() {
	ctx := context.Background()
	c := cache.New(s.redis.Client, time.Minute)

	wantErr := errors.New("store down")
	_, err := c.Get(ctx, "acct:alice", func(context.Context) (*models.Identity, error) {
		return nil, wantErr
	})
	s.ErrorIs(err, wantErr)

	identity := s.newIdentity()
	got, err := c.Get(ctx, "acct:alice", func(context.Context) (*models.Identity, error) {
		return identity, nil
	})
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)
}

// Concurrent misses for the same principal collapse into one store load.
func (s *IdentityCacheSuite) TestSingleflightCollapsesMisses() {
	ctx := context.Background()
	c := cache.New(s.redis.Client, time.Minute)
	identity := s.newIdentity()

	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (*models.Identity, error) {
		loads.Add(1)
		<-release
		return identity, nil
	}

	const readers = 10
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get(ctx, "acct:alice", load)
			s.NoError(err)
			s.NotNil(got)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Equal(int32(1), loads.Load())
}

func (s *IdentityCacheSuite) TestNilCacheDegradesToLoader() {
	var c *cache.IdentityCache
	identity := s.newIdentity()

	got, err := c.Get(context.Background(), "acct:alice", func(context.Context) (*models.Identity, error) {
		return identity, nil
	})
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)

	// Invalidate on a nil cache is a no-op, not a panic.
	c.Invalidate(context.Background(), "acct:alice")
}
