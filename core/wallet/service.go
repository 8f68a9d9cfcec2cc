package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
)

var (
	// errors
	ErrInsufficientPoints = errors.New("not enough reward points")
)

type (
	Repository interface {
		// CreateTransaction appends a ledger row and moves the profile
		// reward_points projection by the same amount, atomically.
		// Returns ErrInsufficientPoints when a spend would overdraw.
		CreateTransaction(ctx context.Context, txn Transaction, exec ...core.DBExecutor) (Transaction, error)
		QueryTransactionsByUser(ctx context.Context, userID string, limit int, exec ...core.DBExecutor) ([]Transaction, error)
		SumTransactionsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Record(ctx context.Context, userID string, amount int, description string) error
		Spend(ctx context.Context, userID string, amount int, description string) error
		History(ctx context.Context, userID string, limit int) ([]Transaction, error)
		// Balance sums the ledger; the authoritative figure, independent
		// of the cached profile column.
		Balance(ctx context.Context, userID string) (int, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Record(ctx context.Context, userID string, amount int, description string) error {
	txn := Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      amount,
		Kind:        KindForAmount(amount),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := svc.repo.CreateTransaction(ctx, txn)
	return err
}

// Spend debits a positive number of points, rejecting overdrafts.
func (svc *service) Spend(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return errors.New("spend amount must be positive")
	}
	return svc.Record(ctx, userID, -amount, description)
}

func (svc *service) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return svc.repo.QueryTransactionsByUser(ctx, userID, limit)
}

func (svc *service) Balance(ctx context.Context, userID string) (int, error) {
	return svc.repo.SumTransactionsByUser(ctx, userID)
}
