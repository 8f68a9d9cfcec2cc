package gamify

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
)

var (
	// errors
	ErrNotFound        = errors.New("profile not found")
	ErrVersionConflict = errors.New("profile was modified concurrently")

	NowFunc = time.Now // mockable

	// casMaxAttempts bounds the retry loop on version conflicts.
	casMaxAttempts = 3
)

type (
	Repository interface {
		CreateProfile(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
		GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (Profile, error)
		GetProfileByReferralCode(ctx context.Context, code string, exec ...core.DBExecutor) (Profile, error)
		QueryTopProfiles(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Profile, error)
		// UpdateProfile is a compare-and-set on the version column; it
		// returns ErrVersionConflict when the row moved underneath us.
		// It never writes reward_points: that column belongs to the
		// wallet ledger projection.
		UpdateProfile(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
	}

	// Ledger appends a reward-point transaction; positive amounts earn,
	// negative amounts spend. Satisfied by the wallet service.
	Ledger interface {
		Record(ctx context.Context, userID string, amount int, description string) error
	}

	// Notifier publishes profile-change events for push-based consumers
	// (leaderboard refresh). Satisfied by the redis store.
	Notifier interface {
		ProfileChanged(ctx context.Context, userID string) error
	}

	Service interface {
		EnsureProfile(ctx context.Context, userID string) (Profile, error)
		Get(ctx context.Context, userID string) (Profile, error)
		GetByReferralCode(ctx context.Context, code string) (Profile, error)
		ResolveReferralCode(ctx context.Context, code string) (ownerID string, err error)
		DailyCheckIn(ctx context.Context, userID string) (CheckInResult, error)
		AwardXP(ctx context.Context, userID string, xp, points int, reason string) (Profile, error)
	}

	service struct {
		repo     Repository
		ledger   Ledger
		notifier Notifier
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, ledger Ledger, notifier Notifier, logger core.Logger) Service {
	return &service{repo: repo, ledger: ledger, notifier: notifier, logger: logger}
}

// EnsureProfile returns the user's profile, creating the initial one
// (XP=0, level=1, streak=0, fresh referral code) when missing.
func (svc *service) EnsureProfile(ctx context.Context, userID string) (Profile, error) {
	p, err := svc.repo.GetProfileByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if err != ErrNotFound {
		return Profile{}, err
	}

	now := NowFunc().UTC()
	p = Profile{
		UserID:       userID,
		Level:        LevelForXP(0),
		ReferralCode: NewReferralCode(),
		WeekStart:    weekStart(now),
		MonthStart:   monthStart(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateProfile(ctx, p)
}

func (svc *service) Get(ctx context.Context, userID string) (Profile, error) {
	return svc.repo.GetProfileByUserID(ctx, userID)
}

func (svc *service) GetByReferralCode(ctx context.Context, code string) (Profile, error) {
	return svc.repo.GetProfileByReferralCode(ctx, core.CleanString(code))
}

// ResolveReferralCode maps a code to the user owning it.
func (svc *service) ResolveReferralCode(ctx context.Context, code string) (string, error) {
	p, err := svc.GetByReferralCode(ctx, code)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// DailyCheckIn applies the streak rules for the current calendar day:
// same day is a no-op, a one-day gap increments the streak, anything
// else resets it to 1. Non-no-op check-ins grant the login bonus.
// Safe to retry: the calendar-day comparison makes it idempotent.
func (svc *service) DailyCheckIn(ctx context.Context, userID string) (CheckInResult, error) {
	var res CheckInResult

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		p, err := svc.repo.GetProfileByUserID(ctx, userID)
		if err != nil {
			return CheckInResult{}, err
		}

		now := NowFunc().UTC()
		today := core.CalendarDate(now)

		if !p.LastActivityDate.IsZero() && p.LastActivityDate.Equal(today) {
			// already checked in today
			return CheckInResult{Credited: false, Streak: p.Streak, Profile: p}, nil
		}

		if p.LastActivityDate.Equal(today.AddDate(0, 0, -1)) {
			p.Streak++
		} else {
			p.Streak = 1
		}
		p.LastActivityDate = today
		p.ApplyXP(LoginBonusXP, now)
		p.UpdatedAt = now

		updated, err := svc.repo.UpdateProfile(ctx, p)
		if err == ErrVersionConflict {
			continue // somebody else moved the row; re-read and redo
		}
		if err != nil {
			return CheckInResult{}, err
		}

		res = CheckInResult{
			Credited:    true,
			Streak:      updated.Streak,
			BonusXP:     LoginBonusXP,
			BonusPoints: LoginBonusPoints,
			Profile:     updated,
		}
		break
	}
	if !res.Credited {
		return CheckInResult{}, ErrVersionConflict
	}

	if err := svc.ledger.Record(ctx, userID, LoginBonusPoints, "daily login bonus"); err != nil {
		// the streak advanced but the points did not; log and report
		// no bonus, the ledger remains consistent with itself
		svc.logger.Error("gamify: recording login bonus", err)
		res.BonusPoints = 0
	} else {
		res.Profile.RewardPoints += LoginBonusPoints
	}

	if err := svc.notifier.ProfileChanged(ctx, userID); err != nil {
		svc.logger.Warn("gamify: publishing profile change", err)
	}
	return res, nil
}

// AwardXP credits XP (and optionally reward points) for course/quiz
// milestones, through the same versioned update path as check-ins.
func (svc *service) AwardXP(ctx context.Context, userID string, xp, points int, reason string) (Profile, error) {
	if xp < 0 || points < 0 {
		return Profile{}, errors.New("awards must be non-negative")
	}

	var updated Profile
	var err error
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		var p Profile
		if p, err = svc.repo.GetProfileByUserID(ctx, userID); err != nil {
			return Profile{}, err
		}

		now := NowFunc().UTC()
		p.ApplyXP(xp, now)
		p.UpdatedAt = now

		if updated, err = svc.repo.UpdateProfile(ctx, p); err == ErrVersionConflict {
			continue
		}
		break
	}
	if err != nil {
		return Profile{}, err
	}

	if points > 0 {
		if err := svc.ledger.Record(ctx, userID, points, reason); err != nil {
			svc.logger.Error("gamify: recording award points", err)
		} else {
			updated.RewardPoints += points
		}
	}

	if err := svc.notifier.ProfileChanged(ctx, userID); err != nil {
		svc.logger.Warn("gamify: publishing profile change", err)
	}
	return updated, nil
}
