package gamify

import (
	"crypto/rand"
	"time"
)

// Bonus amounts, in XP and reward points respectively.
const (
	XPPerLevel = 1000

	LoginBonusXP     = 10
	LoginBonusPoints = 10

	CourseBonusXP     = 50
	CourseBonusPoints = 25

	QuizBonusXP = 20
)

const referralCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no I/O/0/1

// Profile is the per-user gamification record. It is created on first
// registration and never deleted.
type Profile struct {
	UserID       string `json:"user_id"`
	XP           int    `json:"xp"`
	Level        int    `json:"level"` // always floor(xp/1000)+1, see ApplyXP
	Streak       int    `json:"streak"`
	RewardPoints int    `json:"reward_points"` // cached projection of the wallet ledger
	ReferralCode string `json:"referral_code"`
	WeeklyXP     int    `json:"weekly_xp"`
	MonthlyXP    int    `json:"monthly_xp"`

	LastActivityDate time.Time `json:"last_activity_date"` // calendar date, UTC; zero when never active
	WeekStart        time.Time `json:"-"`                  // anchor of the weekly_xp window
	MonthStart       time.Time `json:"-"`                  // anchor of the monthly_xp window

	Version   int       `json:"-"` // optimistic concurrency
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LevelForXP derives the level from an XP total.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 1
	}
	return xp/XPPerLevel + 1
}

// ApplyXP is the single mutation path for XP. It adds delta, recomputes
// the level and rolls the weekly/monthly accumulators over when their
// window has passed. Level is never assigned anywhere else.
func (p *Profile) ApplyXP(delta int, now time.Time) {
	p.rollover(now)
	p.XP += delta
	if p.XP < 0 {
		p.XP = 0
	}
	p.Level = LevelForXP(p.XP)
	p.WeeklyXP += delta
	p.MonthlyXP += delta
}

// rollover resets the rolling accumulators when their period anchor has passed.
func (p *Profile) rollover(now time.Time) {
	ws := weekStart(now)
	if !p.WeekStart.Equal(ws) {
		p.WeekStart = ws
		p.WeeklyXP = 0
	}
	ms := monthStart(now)
	if !p.MonthStart.Equal(ms) {
		p.MonthStart = ms
		p.MonthlyXP = 0
	}
}

func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NewReferralCode generates a short uppercase alphanumeric referral code.
func NewReferralCode() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = referralCodeCharset[int(b)%len(referralCodeCharset)]
	}
	return string(buf)
}

// CheckInResult describes the outcome of a daily check-in, for the
// user-visible confirmation.
type CheckInResult struct {
	Credited    bool    `json:"credited"` // false when already checked in today
	Streak      int     `json:"streak"`
	BonusXP     int     `json:"bonus_xp"`
	BonusPoints int     `json:"bonus_points"`
	Profile     Profile `json:"profile"`
}
