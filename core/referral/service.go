package referral

import (
	"context"

	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
)

var (
	ErrNotFound        = errors.New("referral not found")
	ErrInvalidCode     = errors.New("invalid referral code")
	ErrOwnCode         = errors.New("cannot redeem your own referral code")
	ErrAlreadyRedeemed = errors.New("referral code already redeemed")
)

type (
	// CodeResolver resolves a referral code to the user owning it.
	// Satisfied by the gamify service.
	CodeResolver interface {
		ResolveReferralCode(ctx context.Context, code string) (ownerID string, err error)
	}

	// Notifier publishes profile-change events for push-based consumers
	// (leaderboard refresh). Satisfied by the redis store.
	Notifier interface {
		ProfileChanged(ctx context.Context, userID string) error
	}

	Repository interface {
		// CompleteReferral records the redemption and credits both sides in a
		// single transaction: insert the completed row, append two ledger
		// entries and move both profiles' XP, level and reward points.
		// Returns ErrAlreadyRedeemed if redeemerID already has a completed row.
		CompleteReferral(ctx context.Context, referrerID, redeemerID, code string) (Referral, error)
		QueryReferralsByReferrer(ctx context.Context, referrerID string, exec ...core.DBExecutor) ([]Referral, error)
		GetCompletedByReferred(ctx context.Context, referredID string, exec ...core.DBExecutor) (Referral, error)
	}

	Service interface {
		// Apply redeems code on behalf of userID.
		Apply(ctx context.Context, code, userID string) (ApplyResult, error)
		// Summarize returns the referrer-facing stats for a user's own code.
		Summarize(ctx context.Context, userID, code string) (Summary, error)
	}

	service struct {
		conf     *core.Config
		repo     Repository
		resolver CodeResolver
		notifier Notifier
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, repo Repository, resolver CodeResolver, notifier Notifier, logger core.Logger) Service {
	return &service{conf: conf, repo: repo, resolver: resolver, notifier: notifier, logger: logger}
}

func (svc *service) Apply(ctx context.Context, code, userID string) (ApplyResult, error) {
	ownerID, err := svc.resolver.ResolveReferralCode(ctx, code)
	if err != nil {
		return ApplyResult{}, ErrInvalidCode
	}
	if ownerID == userID {
		return ApplyResult{}, ErrOwnCode
	}
	if _, err = svc.repo.GetCompletedByReferred(ctx, userID); err == nil {
		return ApplyResult{}, ErrAlreadyRedeemed
	} else if errors.Cause(err) != ErrNotFound {
		return ApplyResult{}, errors.Wrap(err, "checking prior redemption")
	}

	ref, err := svc.repo.CompleteReferral(ctx, ownerID, userID, code)
	if err != nil {
		return ApplyResult{}, err
	}

	// both profiles just moved; let push consumers re-rank
	for _, id := range []string{ownerID, userID} {
		if err := svc.notifier.ProfileChanged(ctx, id); err != nil {
			svc.logger.Warn("referral: publishing profile change", err)
		}
	}
	return ApplyResult{Referral: ref, ReferrerBonus: ReferrerBonus, WelcomeBonus: WelcomeBonus}, nil
}

func (svc *service) Summarize(ctx context.Context, userID, code string) (Summary, error) {
	refs, err := svc.repo.QueryReferralsByReferrer(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Code:      code,
		Link:      Link(svc.conf.FrontendBaseURL, code),
		Total:     len(refs),
		Referrals: refs,
	}
	for _, r := range refs {
		if r.IsCompleted() {
			sum.Completed++
			sum.PointsEarned += r.PointsEarned
		}
	}
	return sum, nil
}
