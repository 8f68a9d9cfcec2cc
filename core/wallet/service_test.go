package wallet

import (
	"context"
	"testing"

	"github.com/elimulabs/elimu/core"
)

type memRepo struct {
	txns     []Transaction
	balances map[string]int
}

func newMemRepo() *memRepo { return &memRepo{balances: make(map[string]int)} }

func (r *memRepo) CreateTransaction(_ context.Context, txn Transaction, _ ...core.DBExecutor) (Transaction, error) {
	if r.balances[txn.UserID]+txn.Amount < 0 {
		return Transaction{}, ErrInsufficientPoints
	}
	r.txns = append(r.txns, txn)
	r.balances[txn.UserID] += txn.Amount
	return txn, nil
}

func (r *memRepo) QueryTransactionsByUser(_ context.Context, userID string, limit int, _ ...core.DBExecutor) ([]Transaction, error) {
	var out []Transaction
	for i := len(r.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if r.txns[i].UserID == userID {
			out = append(out, r.txns[i])
		}
	}
	return out, nil
}

func (r *memRepo) SumTransactionsByUser(_ context.Context, userID string, _ ...core.DBExecutor) (int, error) {
	var sum int
	for _, txn := range r.txns {
		if txn.UserID == userID {
			sum += txn.Amount
		}
	}
	return sum, nil
}

func TestKindForAmount(t *testing.T) {
	if KindForAmount(10) != KindEarning {
		t.Error("positive amount should be an earning")
	}
	if KindForAmount(-10) != KindSpending {
		t.Error("negative amount should be a spending")
	}
}

func TestBalanceIsLedgerSum(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for _, amt := range []int{100, 50, -30} {
		desc := "earn"
		if amt < 0 {
			if err := svc.Spend(ctx, "u1", -amt, "spend"); err != nil {
				t.Fatalf("Spend() failed: %v", err)
			}
			continue
		}
		if err := svc.Record(ctx, "u1", amt, desc); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	bal, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if bal != 120 {
		t.Errorf("balance = %d; want 120", bal)
	}

	hist, err := svc.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(hist) != 3 {
		t.Errorf("history has %d rows; want 3", len(hist))
	}
	if hist[0].Kind != KindSpending {
		t.Errorf("latest transaction kind = %q; want %q", hist[0].Kind, KindSpending)
	}
}

func TestSpendRejectsOverdraft(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Record(ctx, "u1", 20, "seed"); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := svc.Spend(ctx, "u1", 50, "too much"); err != ErrInsufficientPoints {
		t.Errorf("Spend() error = %v; want ErrInsufficientPoints", err)
	}
	if err := svc.Spend(ctx, "u1", 0, "zero"); err == nil {
		t.Error("Spend(0) should be rejected")
	}
}
