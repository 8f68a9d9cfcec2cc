package notification

import "time"

// Kinds
const (
	KindStreak    = "streak"
	KindReferral  = "referral"
	KindCourse    = "course"
	KindLevelUp   = "level_up"
	KindBroadcast = "broadcast"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
