//go:build integration

package window_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shahin/internal/aifilter/store/window"
	"shahin/pkg/testutil/containers"
)

type RedisWindowSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *window.Redis
}

func TestRedisWindowSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisWindowSuite))
}

func (s *RedisWindowSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = window.NewRedis(s.redis.Client)
}

func (s *RedisWindowSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisWindowSuite) TestAllowUnderLimit() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := s.store.Allow(ctx, "ACME", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	blocked, err := s.store.Allow(ctx, "ACME", 3, time.Minute)
	s.Require().NoError(err)
	s.False(blocked.Allowed)
	s.Greater(blocked.RetryAfter, time.Duration(0))
	s.LessOrEqual(blocked.RetryAfter, time.Minute)
}

func (s *RedisWindowSuite) TestKeysAreIndependent() {
	ctx := context.Background()

	_, err := s.store.Allow(ctx, "ACME", 1, time.Minute)
	s.Require().NoError(err)
	blocked, err := s.store.Allow(ctx, "ACME", 1, time.Minute)
	s.Require().NoError(err)
	s.False(blocked.Allowed)

	other, err := s.store.Allow(ctx, "GLOBEX", 1, time.Minute)
	s.Require().NoError(err)
	s.True(other.Allowed)
}

func (s *RedisWindowSuite) TestWindowResetsAfterExpiry() {
	ctx := context.Background()

	_, err := s.store.Allow(ctx, "ACME", 1, 2*time.Second)
	s.Require().NoError(err)
	blocked, err := s.store.Allow(ctx, "ACME", 1, 2*time.Second)
	s.Require().NoError(err)
	s.False(blocked.Allowed)

	time.Sleep(2100 * time.Millisecond)

	fresh, err := s.store.Allow(ctx, "ACME", 1, 2*time.Second)
	s.Require().NoError(err)
	s.True(fresh.Allowed)
}
