package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/elimulabs/elimu/core"
	"github.com/elimulabs/elimu/core/wallet"
)

type transactionRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Amount      int       `db:"amount"`
	Kind        string    `db:"kind"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r transactionRow) transaction() wallet.Transaction {
	return wallet.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      r.Amount,
		Kind:        r.Kind,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

type transactionRepository struct {
	db core.DB
}

var _ wallet.Repository = (*transactionRepository)(nil) // interface compliance check

func NewTransactionRepository(db core.DB) *transactionRepository {
	return &transactionRepository{db: db}
}

func (repo transactionRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

// CreateTransaction appends the ledger row and moves the profile
// reward_points projection in one transaction. The projection update
// doubles as the overdraft guard.
func (repo transactionRepository) CreateTransaction(ctx context.Context, txn wallet.Transaction, exec ...core.DBExecutor) (wallet.Transaction, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "beginning wallet transaction")
	}
	defer func() { _ = tx.Rollback() }()

	project := `
		UPDATE profile
		SET reward_points = reward_points + $2, updated_at = $3
		WHERE user_id = $1 AND reward_points + $2 >= 0`
	res, err := tx.ExecContext(ctx, project, txn.UserID, txn.Amount, txn.CreatedAt)
	if err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "projecting wallet balance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wallet.Transaction{}, wallet.ErrInsufficientPoints
	}

	insert := `
		INSERT INTO transaction (id, user_id, amount, kind, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = tx.ExecContext(ctx, insert, txn.ID, txn.UserID, txn.Amount, txn.Kind, txn.Description, txn.CreatedAt)
	if err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "inserting wallet transaction")
	}

	if err = tx.Commit(); err != nil {
		return wallet.Transaction{}, errors.Wrap(err, "committing wallet transaction")
	}
	return txn, nil
}

func (repo transactionRepository) QueryTransactionsByUser(ctx context.Context, userID string, limit int, exec ...core.DBExecutor) ([]wallet.Transaction, error) {
	var rows []transactionRow
	query := `
		SELECT id, user_id, amount, kind, description, created_at
		FROM transaction WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`
	if err := repo.getExec(exec).SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, errors.Wrap(err, "querying wallet transactions")
	}
	txns := make([]wallet.Transaction, 0, len(rows))
	for _, r := range rows {
		txns = append(txns, r.transaction())
	}
	return txns, nil
}

func (repo transactionRepository) SumTransactionsByUser(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	var sum int
	query := `SELECT COALESCE(SUM(amount), 0) FROM transaction WHERE user_id = $1`
	if err := repo.getExec(exec).GetContext(ctx, &sum, query, userID); err != nil {
		return 0, errors.Wrap(err, "summing wallet transactions")
	}
	return sum, nil
}
