package leaderboard

import (
	"context"

	"github.com/elimulabs/elimu/core"
)

// MaxSize caps how many rows the board tracks; ranks past it report
// as not found.
const MaxSize = 100

type (
	Repository interface {
		// QueryTopEntries returns up to limit rows ordered by XP
		// descending, earlier profile creation breaking ties. Ranks
		// are not assigned.
		QueryTopEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Entry, error)
	}

	// Cache mirrors the ranked board for cheap reads. A miss reports
	// ok=false and falls through to the database.
	Cache interface {
		ReplaceTop(ctx context.Context, entries []Entry) error
		Top(ctx context.Context, limit int) (entries []Entry, ok bool, err error)
		RankOf(ctx context.Context, userID string) (rank int, ok bool, err error)
	}

	// Subscriber yields the user IDs of changed profiles; the channel
	// closes when ctx is done.
	Subscriber interface {
		Changes(ctx context.Context) (<-chan string, error)
	}

	Service interface {
		Top(ctx context.Context, limit int) ([]Entry, error)
		// RankOf reports a user's rank; found is false when the user
		// sits outside the tracked board.
		RankOf(ctx context.Context, userID string) (rank int, found bool, err error)
		Refresh(ctx context.Context) error
		// Run consumes profile-change events and refreshes the board
		// until ctx is done.
		Run(ctx context.Context, sub Subscriber) error
	}

	service struct {
		repo   Repository
		cache  Cache
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, cache Cache, logger core.Logger) Service {
	return &service{repo: repo, cache: cache, logger: logger}
}

func (svc *service) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxSize {
		limit = MaxSize
	}

	if entries, ok, err := svc.cache.Top(ctx, limit); err != nil {
		svc.logger.Warn("leaderboard: cache read", err)
	} else if ok {
		return entries, nil
	}

	entries, err := svc.repo.QueryTopEntries(ctx, limit)
	if err != nil {
		return nil, err
	}
	return AssignRanks(entries), nil
}

func (svc *service) RankOf(ctx context.Context, userID string) (int, bool, error) {
	if rank, ok, err := svc.cache.RankOf(ctx, userID); err != nil {
		svc.logger.Warn("leaderboard: cache rank read", err)
	} else if ok {
		return rank, true, nil
	}

	entries, err := svc.repo.QueryTopEntries(ctx, MaxSize)
	if err != nil {
		return 0, false, err
	}
	for i, e := range entries {
		if e.UserID == userID {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

// Refresh rebuilds the cached board from the database.
func (svc *service) Refresh(ctx context.Context) error {
	entries, err := svc.repo.QueryTopEntries(ctx, MaxSize)
	if err != nil {
		return err
	}
	return svc.cache.ReplaceTop(ctx, AssignRanks(entries))
}

func (svc *service) Run(ctx context.Context, sub Subscriber) error {
	changes, err := sub.Changes(ctx)
	if err != nil {
		return err
	}
	if err = svc.Refresh(ctx); err != nil {
		svc.logger.Warn("leaderboard: initial refresh", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, open := <-changes:
			if !open {
				return nil
			}
			if err := svc.Refresh(ctx); err != nil {
				svc.logger.Error("leaderboard: refresh", err)
			}
		}
	}
}
