package wallet

import "time"

// Transaction kinds. The kind is derived from the sign of the amount,
// never set independently.
const (
	KindEarning  = "earning"
	KindSpending = "spending"
)

// Transaction is a single row in the append-only reward-point ledger.
// The ledger is the source of truth for reward points; the profile
// column is a projection maintained in the same database transaction.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      int       `json:"amount"` // signed
	Kind        string    `json:"kind"`   // earning | spending
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// KindForAmount derives the transaction kind from a signed amount.
func KindForAmount(amount int) string {
	if amount < 0 {
		return KindSpending
	}
	return KindEarning
}
