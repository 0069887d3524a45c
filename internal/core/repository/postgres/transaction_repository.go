package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const transactionColumns = `id, user_id, from_wallet_id, to_wallet_id, recipient_user_id, transaction_type,
	amount, currency_code, status, reference_number, exchange_rate, fee, description, metadata,
	created_at, completed_at`

type postgresTransactionRepo struct {
	db sqlx.ExtContext
}

func (r *postgresTransactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if len(t.Metadata) == 0 {
		t.Metadata = models.NewMetadata(nil)
	}

	const query = `INSERT INTO transactions
		(id, user_id, from_wallet_id, to_wallet_id, recipient_user_id, transaction_type, amount,
		 currency_code, status, reference_number, exchange_rate, fee, description, metadata,
		 created_at, completed_at)
		VALUES (:id, :user_id, :from_wallet_id, :to_wallet_id, :recipient_user_id, :transaction_type, :amount,
		 :currency_code, :status, :reference_number, :exchange_rate, :fee, :description, :metadata,
		 :created_at, :completed_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// UpdateStatus locks the row and applies the change only when the current
// status allows it.
func (r *postgresTransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, completedAt *time.Time) error {
	var from models.TransactionStatus
	if err := sqlx.GetContext(ctx, r.db, &from, `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, id); err != nil {
		return notFound(err, "transaction")
	}
	if !from.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, from, status)
	}

	const query = `UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, completedAt, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return expectOneRow(res, "transaction")
}

func (r *postgresTransactionRepo) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := sqlx.SelectContext(ctx, r.db, &txs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}
