package redisstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/elimulabs/elimu/core/gamify"
	"github.com/elimulabs/elimu/core/leaderboard"
)

const (
	boardKey = "leaderboard:board" // JSON snapshot of the ranked entries
	ranksKey = "leaderboard:ranks" // ZSET member=userID score=rank
	changes  = "profiles:changed"  // pub/sub channel carrying user IDs
)

var (
	_ leaderboard.Cache      = (*Client)(nil)
	_ leaderboard.Subscriber = (*Client)(nil)
	_ gamify.Notifier        = (*Client)(nil)
)

// ReplaceTop swaps in a freshly ranked board.
func (c *Client) ReplaceTop(ctx context.Context, entries []leaderboard.Entry) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "marshaling leaderboard")
	}

	zs := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		zs = append(zs, redis.Z{Score: float64(e.Rank), Member: e.UserID})
	}

	pipe := c.TxPipeline()
	pipe.Set(ctx, boardKey, blob, 0)
	pipe.Del(ctx, ranksKey)
	if len(zs) > 0 {
		pipe.ZAdd(ctx, ranksKey, zs...)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "replacing leaderboard")
	}
	return nil
}

func (c *Client) Top(ctx context.Context, limit int) ([]leaderboard.Entry, bool, error) {
	blob, err := c.Get(ctx, boardKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading leaderboard")
	}

	var entries []leaderboard.Entry
	if err = json.Unmarshal(blob, &entries); err != nil {
		return nil, false, errors.Wrap(err, "unmarshaling leaderboard")
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, true, nil
}

// RankOf reads the cached rank; ranks are stored as the ZSET score so
// the database's tie-break order survives the round-trip.
func (c *Client) RankOf(ctx context.Context, userID string) (int, bool, error) {
	score, err := c.ZScore(ctx, ranksKey, userID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "reading leaderboard rank")
	}
	return int(score), true, nil
}

// ProfileChanged publishes a profile-change event for push-based
// leaderboard refresh.
func (c *Client) ProfileChanged(ctx context.Context, userID string) error {
	if err := c.Publish(ctx, changes, userID).Err(); err != nil {
		return errors.Wrap(err, "publishing profile change")
	}
	return nil
}

// Changes subscribes to profile-change events. The returned channel
// closes when ctx is done.
func (c *Client) Changes(ctx context.Context) (<-chan string, error) {
	sub := c.Subscribe(ctx, changes)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, errors.Wrap(err, "subscribing to profile changes")
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, open := <-sub.Channel():
				if !open {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
