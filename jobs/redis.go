package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
)

// RedisOpt builds the asynq connection from the same REDIS_ADDR value the
// cache uses: host:port or a redis:// or rediss:// URL.
func RedisOpt(addr string) (asynq.RedisConnOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return nil, err
	}
	return asynq.RedisClientOpt{
		Network:   opts.Network,
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}
