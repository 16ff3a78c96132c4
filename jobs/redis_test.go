package jobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisOptAcceptsAddressesAndURLs(t *testing.T) {
	opt, err := RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opt.(asynq.RedisClientOpt).Addr)

	opt, err = RedisOpt("redis://:secret@cache.internal:6380/2")
	require.NoError(t, err)
	client := opt.(asynq.RedisClientOpt)
	assert.Equal(t, "cache.internal:6380", client.Addr)
	assert.Equal(t, "secret", client.Password)
	assert.Equal(t, 2, client.DB)
	assert.Nil(t, client.TLSConfig)

	opt, err = RedisOpt("rediss://cache.internal:6380")
	require.NoError(t, err)
	assert.NotNil(t, opt.(asynq.RedisClientOpt).TLSConfig)

	_, err = RedisOpt("redis://host:port:bad/x")
	assert.Error(t, err)
}

func TestRedisOptURLReachesServer(t *testing.T) {
	mr := miniredis.RunT(t)
	opt, err := RedisOpt("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)

	client, ok := opt.MakeRedisClient().(redis.UniversalClient)
	require.True(t, ok)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
}
