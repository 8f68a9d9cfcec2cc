package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/referral"
	"github.com/elimulabs/elimu/core/wallet"
)

type referralRow struct {
	ID           string      `db:"id"`
	ReferrerID   string      `db:"referrer_id"`
	ReferredID   null.String `db:"referred_id"`
	Code         string      `db:"code"`
	PointsEarned int         `db:"points_earned"`
	Status       string      `db:"status"`
	CreatedAt    time.Time   `db:"created_at"`
	CompletedAt  null.Time   `db:"completed_at"`
}

func (r referralRow) referral() referral.Referral {
	return referral.Referral{
		ID:           r.ID,
		ReferrerID:   r.ReferrerID,
		ReferredID:   r.ReferredID,
		Code:         r.Code,
		PointsEarned: r.PointsEarned,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
	}
}

type referralRepository struct {
	db core.DB
}

var _ referral.Repository = (*referralRepository)(nil) // interface compliance check

func NewReferralRepository(db core.DB) *referralRepository {
	return &referralRepository{db: db}
}

func (repo referralRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

func (repo referralRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return referral.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const referralColumns = `id, referrer_id, referred_id, code, points_earned, status, created_at, completed_at`

// CompleteReferral runs the whole redemption as one transaction: the
// completed referral row, both ledger entries and both profile credits
// commit together or not at all. The partial unique index on
// referred_id turns a double redemption into ErrAlreadyRedeemed.
func (repo referralRepository) CompleteReferral(ctx context.Context, referrerID, redeemerID, code string) (referral.Referral, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return referral.Referral{}, errors.Wrap(err, "beginning referral transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	ref := referral.Referral{
		ID:           uuid.New().String(),
		ReferrerID:   referrerID,
		ReferredID:   null.StringFrom(redeemerID),
		Code:         code,
		PointsEarned: referral.ReferrerBonus,
		Status:       referral.StatusCompleted,
		CreatedAt:    now,
		CompletedAt:  null.TimeFrom(now),
	}

	insert := `
		INSERT INTO referral (id, referrer_id, referred_id, code, points_earned, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(ctx, insert,
		ref.ID, ref.ReferrerID, ref.ReferredID, ref.Code, ref.PointsEarned, ref.Status, ref.CreatedAt, ref.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return referral.Referral{}, referral.ErrAlreadyRedeemed
		}
		return referral.Referral{}, errors.Wrap(err, "inserting referral")
	}

	credit := func(userID string, amount int, description string) error {
		q := `
			INSERT INTO transaction (id, user_id, amount, kind, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, q, uuid.New().String(), userID, amount, wallet.KindEarning, description, now); err != nil {
			return errors.Wrap(err, "inserting referral ledger entry")
		}
		// same bonus to XP, level stays derived from the new total
		q = `
			UPDATE profile
			SET xp = xp + $2,
				level = (xp + $2) / 1000 + 1,
				reward_points = reward_points + $2,
				version = version + 1,
				updated_at = $3
			WHERE user_id = $1`
		if _, err := tx.ExecContext(ctx, q, userID, amount, now); err != nil {
			return errors.Wrap(err, "crediting referral bonus")
		}
		return nil
	}

	if err = credit(referrerID, referral.ReferrerBonus, "referral bonus"); err != nil {
		return referral.Referral{}, err
	}
	if err = credit(redeemerID, referral.WelcomeBonus, "referral welcome bonus"); err != nil {
		return referral.Referral{}, err
	}

	if err = tx.Commit(); err != nil {
		return referral.Referral{}, errors.Wrap(err, "committing referral transaction")
	}
	return ref, nil
}

func (repo referralRepository) QueryReferralsByReferrer(ctx context.Context, referrerID string, exec ...core.DBExecutor) ([]referral.Referral, error) {
	var rows []referralRow
	query := `SELECT ` + referralColumns + ` FROM referral WHERE referrer_id = $1 ORDER BY created_at DESC`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, referrerID); err != nil {
		return nil, errors.Wrap(err, "querying referrals")
	}
	refs := make([]referral.Referral, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, r.referral())
	}
	return refs, nil
}

func (repo referralRepository) GetCompletedByReferred(ctx context.Context, referredID string, exec ...core.DBExecutor) (referral.Referral, error) {
	var r referralRow
	query := `SELECT ` + referralColumns + ` FROM referral WHERE referred_id = $1 AND status = $2`
	if err := repo.getExec(exec).GetContext(ctx, &r, query, referredID, referral.StatusCompleted); err != nil {
		return referral.Referral{}, repo.trapNoRowsErr(err, "getting completed referral")
	}
	return r.referral(), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
