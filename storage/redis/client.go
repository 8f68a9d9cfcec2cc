package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/elimulabs/elimu/core"
)

// Client wraps the redis client with the app's leaderboard and
// change-notification helpers.
type Client struct {
	*redis.Client
}

func NewClient(conf *core.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address(),
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return &Client{rdb}, nil
}
