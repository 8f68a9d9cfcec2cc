package referral

import (
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Bonuses, credited to XP and reward points alike.
const (
	ReferrerBonus = 100 // for the owner of the code
	WelcomeBonus  = 50  // one-time, for the redeemer
)

// Referral tracks one redemption of a referral code. A completed row is
// unique per (referrer, referred) pair, and a user may ever appear as
// referred on at most one completed row.
type Referral struct {
	ID           string      `json:"id"`
	ReferrerID   string      `json:"referrer_id"`
	ReferredID   null.String `json:"referred_id"` // null until someone redeems the code
	Code         string      `json:"code"`
	PointsEarned int         `json:"points_earned"` // ReferrerBonus once completed
	Status       string      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  null.Time   `json:"completed_at"`
}

func (r Referral) IsCompleted() bool { return r.Status == StatusCompleted }

// Link renders the shareable referral link for a code.
func Link(frontendBaseURL, code string) string {
	return fmt.Sprintf("%s/login?ref=%s", frontendBaseURL, code)
}

// Summary is the referrer-facing aggregate view.
type Summary struct {
	Code         string     `json:"code"`
	Link         string     `json:"link"`
	Total        int        `json:"total"`
	Completed    int        `json:"completed"`
	PointsEarned int        `json:"points_earned"`
	Referrals    []Referral `json:"referrals"`
}

// ApplyResult reports a successful redemption.
type ApplyResult struct {
	Referral      Referral `json:"referral"`
	ReferrerBonus int      `json:"referrer_bonus"`
	WelcomeBonus  int      `json:"welcome_bonus"`
}
