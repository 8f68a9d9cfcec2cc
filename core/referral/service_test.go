package referral

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/elimulabs/elimu/core"
)

type memResolver map[string]string // code -> owner

func (m memResolver) ResolveReferralCode(ctx context.Context, code string) (string, error) {
	if id, ok := m[code]; ok {
		return id, nil
	}
	return "", ErrNotFound
}

type memRepo struct {
	referrals []Referral
}

func (m *memRepo) CompleteReferral(ctx context.Context, referrerID, redeemerID, code string) (Referral, error) {
	for _, r := range m.referrals {
		if r.IsCompleted() && r.ReferredID.String == redeemerID {
			return Referral{}, ErrAlreadyRedeemed
		}
	}
	now := time.Now()
	ref := Referral{
		ID:           uuid.New().String(),
		ReferrerID:   referrerID,
		ReferredID:   null.StringFrom(redeemerID),
		Code:         code,
		PointsEarned: ReferrerBonus,
		Status:       StatusCompleted,
		CreatedAt:    now,
		CompletedAt:  null.TimeFrom(now),
	}
	m.referrals = append(m.referrals, ref)
	return ref, nil
}

func (m *memRepo) QueryReferralsByReferrer(ctx context.Context, referrerID string, exec ...core.DBExecutor) ([]Referral, error) {
	var refs []Referral
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			refs = append(refs, r)
		}
	}
	return refs, nil
}

func (m *memRepo) GetCompletedByReferred(ctx context.Context, referredID string, exec ...core.DBExecutor) (Referral, error) {
	for _, r := range m.referrals {
		if r.IsCompleted() && r.ReferredID.String == referredID {
			return r, nil
		}
	}
	return Referral{}, ErrNotFound
}

type memNotifier struct {
	published []string
}

func (n *memNotifier) ProfileChanged(_ context.Context, userID string) error {
	n.published = append(n.published, userID)
	return nil
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestService(repo *memRepo, resolver memResolver) (Service, *memNotifier) {
	conf := &core.Config{FrontendBaseURL: "https://app.example.com"}
	notifier := &memNotifier{}
	return NewService(conf, repo, resolver, notifier, nopLogger{}), notifier
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	resolver := memResolver{"ALICE123": "alice"}

	t.Run("credits both sides once", func(t *testing.T) {
		repo := &memRepo{}
		svc, notifier := newTestService(repo, resolver)

		res, err := svc.Apply(ctx, "ALICE123", "bob")
		if err != nil {
			t.Fatalf("expected success; got %v", err)
		}
		if res.ReferrerBonus != 100 || res.WelcomeBonus != 50 {
			t.Errorf("expected bonuses 100/50; got %d/%d", res.ReferrerBonus, res.WelcomeBonus)
		}
		if !res.Referral.IsCompleted() {
			t.Errorf("expected completed referral; got status %q", res.Referral.Status)
		}
		if res.Referral.PointsEarned != ReferrerBonus {
			t.Errorf("expected points_earned %d; got %d", ReferrerBonus, res.Referral.PointsEarned)
		}
		if len(notifier.published) != 2 || notifier.published[0] != "alice" || notifier.published[1] != "bob" {
			t.Errorf("expected profile changes published for alice and bob; got %v", notifier.published)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		svc, notifier := newTestService(&memRepo{}, resolver)
		if _, err := svc.Apply(ctx, "NOPE999", "bob"); err != ErrInvalidCode {
			t.Errorf("expected ErrInvalidCode; got %v", err)
		}
		if len(notifier.published) != 0 {
			t.Errorf("expected no profile changes; got %v", notifier.published)
		}
	})

	t.Run("own code", func(t *testing.T) {
		svc, _ := newTestService(&memRepo{}, resolver)
		if _, err := svc.Apply(ctx, "ALICE123", "alice"); err != ErrOwnCode {
			t.Errorf("expected ErrOwnCode; got %v", err)
		}
	})

	t.Run("second redemption rejected", func(t *testing.T) {
		repo := &memRepo{}
		svc, notifier := newTestService(repo, memResolver{"ALICE123": "alice", "CAROL456": "carol"})

		if _, err := svc.Apply(ctx, "ALICE123", "bob"); err != nil {
			t.Fatalf("first redemption: %v", err)
		}
		if _, err := svc.Apply(ctx, "CAROL456", "bob"); err != ErrAlreadyRedeemed {
			t.Errorf("expected ErrAlreadyRedeemed; got %v", err)
		}
		if len(repo.referrals) != 1 {
			t.Errorf("expected a single completed referral; got %d", len(repo.referrals))
		}
		if len(notifier.published) != 2 {
			t.Errorf("expected publishes only for the completed redemption; got %v", notifier.published)
		}
	})
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	repo := &memRepo{}
	svc, _ := newTestService(repo, memResolver{"ALICE123": "alice"})

	for _, redeemer := range []string{"bob", "carol"} {
		if _, err := svc.Apply(ctx, "ALICE123", redeemer); err != nil {
			t.Fatalf("apply(%s): %v", redeemer, err)
		}
	}

	sum, err := svc.Summarize(ctx, "alice", "ALICE123")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.Completed != 2 {
		t.Errorf("expected 2/2; got %d/%d", sum.Total, sum.Completed)
	}
	if sum.PointsEarned != 2*ReferrerBonus {
		t.Errorf("expected %d points earned; got %d", 2*ReferrerBonus, sum.PointsEarned)
	}
	if want := "https://app.example.com/login?ref=ALICE123"; sum.Link != want {
		t.Errorf("expected link %q; got %q", want, sum.Link)
	}
}
