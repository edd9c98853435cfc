//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shikkha/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Redis
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestContract() {
	exerciseStore(s.T(), s.store)
}

func (s *RedisStoreSuite) TestReservationExpires() {
	ctx := context.Background()
	state, _, err := s.store.Reserve(ctx, "k-short", 50*time.Millisecond)
	s.Require().NoError(err)
	s.Equal(Reserved, state)

	s.Eventually(func() bool {
		state, _, err := s.store.Reserve(ctx, "k-short", time.Minute)
		return err == nil && state == Reserved
	}, 2*time.Second, 25*time.Millisecond)
}
