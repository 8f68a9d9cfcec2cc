package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/gamify"
)

type profileRow struct {
	UserID           string    `db:"user_id"`
	XP               int       `db:"xp"`
	Level            int       `db:"level"`
	Streak           int       `db:"streak"`
	RewardPoints     int       `db:"reward_points"`
	ReferralCode     string    `db:"referral_code"`
	WeeklyXP         int       `db:"weekly_xp"`
	MonthlyXP        int       `db:"monthly_xp"`
	LastActivityDate null.Time `db:"last_activity_date"`
	WeekStart        time.Time `db:"week_start"`
	MonthStart       time.Time `db:"month_start"`
	Version          int       `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r profileRow) profile() gamify.Profile {
	return gamify.Profile{
		UserID:           r.UserID,
		XP:               r.XP,
		Level:            r.Level,
		Streak:           r.Streak,
		RewardPoints:     r.RewardPoints,
		ReferralCode:     r.ReferralCode,
		WeeklyXP:         r.WeeklyXP,
		MonthlyXP:        r.MonthlyXP,
		LastActivityDate: r.LastActivityDate.Time.UTC(),
		WeekStart:        r.WeekStart.UTC(),
		MonthStart:       r.MonthStart.UTC(),
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type profileRepository struct {
	exec core.DBExecutor
}

var _ gamify.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(exec core.DBExecutor) *profileRepository {
	return &profileRepository{exec: exec}
}

func (repo profileRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo profileRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return gamify.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const profileColumns = `user_id, xp, level, streak, reward_points, referral_code,
	weekly_xp, monthly_xp, last_activity_date, week_start, month_start,
	version, created_at, updated_at`

func (repo profileRepository) CreateProfile(ctx context.Context, p gamify.Profile, exec ...core.DBExecutor) (gamify.Profile, error) {
	query := `
		INSERT INTO profile (user_id, xp, level, streak, reward_points, referral_code,
			weekly_xp, monthly_xp, last_activity_date, week_start, month_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		p.UserID, p.XP, p.Level, p.Streak, p.RewardPoints, p.ReferralCode,
		p.WeeklyXP, p.MonthlyXP, nullDate(p.LastActivityDate), p.WeekStart, p.MonthStart,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return gamify.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return p, nil
}

func (repo profileRepository) GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (gamify.Profile, error) {
	var r profileRow
	query := `SELECT ` + profileColumns + ` FROM profile WHERE user_id = $1`
	if err := repo.getExec(exec).GetContext(ctx, &r, query, userID); err != nil {
		return gamify.Profile{}, repo.trapNoRowsErr(err, "getting profile")
	}
	return r.profile(), nil
}

func (repo profileRepository) GetProfileByReferralCode(ctx context.Context, code string, exec ...core.DBExecutor) (gamify.Profile, error) {
	var r profileRow
	query := `SELECT ` + profileColumns + ` FROM profile WHERE referral_code = $1`
	if err := repo.getExec(exec).GetContext(ctx, &r, query, code); err != nil {
		return gamify.Profile{}, repo.trapNoRowsErr(err, "getting profile by referral code")
	}
	return r.profile(), nil
}

func (repo profileRepository) QueryTopProfiles(ctx context.Context, limit int, exec ...core.DBExecutor) ([]gamify.Profile, error) {
	var rows []profileRow
	query := `SELECT ` + profileColumns + ` FROM profile ORDER BY xp DESC, created_at ASC LIMIT $1`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "querying top profiles")
	}
	profiles := make([]gamify.Profile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, r.profile())
	}
	return profiles, nil
}

// UpdateProfile performs a compare-and-set on the version column.
// reward_points is deliberately left out: that column is the wallet
// ledger's projection and only the transaction repository moves it.
func (repo profileRepository) UpdateProfile(ctx context.Context, p gamify.Profile, exec ...core.DBExecutor) (gamify.Profile, error) {
	query := `
		UPDATE profile
		SET xp = $2, level = $3, streak = $4, weekly_xp = $5, monthly_xp = $6,
			last_activity_date = $7, week_start = $8, month_start = $9,
			version = version + 1, updated_at = $10
		WHERE user_id = $1 AND version = $11`
	res, err := repo.getExec(exec).ExecContext(ctx, query,
		p.UserID, p.XP, p.Level, p.Streak, p.WeeklyXP, p.MonthlyXP,
		nullDate(p.LastActivityDate), p.WeekStart, p.MonthStart, p.UpdatedAt,
		p.Version,
	)
	if err != nil {
		return gamify.Profile{}, errors.Wrap(err, "updating profile")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return gamify.Profile{}, errors.Wrap(err, "updating profile")
	}
	if n == 0 {
		// either the row moved underneath us or it does not exist
		if _, err = repo.GetProfileByUserID(ctx, p.UserID, exec...); err != nil {
			return gamify.Profile{}, err
		}
		return gamify.Profile{}, gamify.ErrVersionConflict
	}
	p.Version++
	return p, nil
}

func nullDate(t time.Time) null.Time {
	return null.NewTime(t, !t.IsZero())
}
