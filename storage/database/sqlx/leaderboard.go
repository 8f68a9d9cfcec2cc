package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/leaderboard"
)

type leaderboardRepository struct {
	exec core.DBExecutor
}

var _ leaderboard.Repository = (*leaderboardRepository)(nil) // interface compliance check

func NewLeaderboardRepository(exec core.DBExecutor) *leaderboardRepository {
	return &leaderboardRepository{exec: exec}
}

func (repo leaderboardRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo leaderboardRepository) QueryTopEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]leaderboard.Entry, error) {
	var rows []struct {
		UserID   string `db:"user_id"`
		Username string `db:"username"`
		Name     string `db:"name"`
		XP       int    `db:"xp"`
		Level    int    `db:"level"`
		Streak   int    `db:"streak"`
	}
	// earlier profile creation wins ties
	query := `
		SELECT p.user_id, COALESCE(u.username, '') AS username, COALESCE(u.name, '') AS name,
			p.xp, p.level, p.streak
		FROM profile p
		JOIN "user" u ON u.id = p.user_id
		WHERE u.is_active
		ORDER BY p.xp DESC, p.created_at ASC
		LIMIT $1`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}

	entries := make([]leaderboard.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, leaderboard.Entry{
			UserID:   r.UserID,
			Username: r.Username,
			Name:     r.Name,
			XP:       r.XP,
			Level:    r.Level,
			Streak:   r.Streak,
		})
	}
	return entries, nil
}
