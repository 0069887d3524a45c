package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, currency_code, wallet_type, balance, is_primary, created_at, updated_at`

type postgresWalletRepo struct {
	db  sqlx.ExtContext
	log logger.Logger
}

func NewPostgresWalletRepo(db sqlx.ExtContext, log logger.Logger) repository.WalletRepository {
	return &postgresWalletRepo{
		db:  db,
		log: log,
	}
}

func (r *postgresWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

func (r *postgresWalletRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresWalletRepo) GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency_code = $2`, userID, currency)
}

func (r *postgresWalletRepo) getOne(ctx context.Context, query string, args ...interface{}) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, args...); err != nil {
		return nil, notFound(err, "wallet")
	}
	return &wallet, nil
}

func (r *postgresWalletRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	wallets := []models.Wallet{}
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 ORDER BY is_primary DESC, created_at`
	if err := sqlx.SelectContext(ctx, r.db, &wallets, query, userID); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

func (r *postgresWalletRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM wallets WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count wallets: %w", err)
	}
	return n, nil
}

func (r *postgresWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	now := time.Now().UTC()
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	wallet.CreatedAt, wallet.UpdatedAt = now, now

	const query = `INSERT INTO wallets
		(id, user_id, currency_code, wallet_type, balance, is_primary, created_at, updated_at)
		VALUES (:id, :user_id, :currency_code, :wallet_type, :balance, :is_primary, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, wallet); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: wallet %s/%s", repository.ErrDuplicate, wallet.UserID, wallet.CurrencyCode)
		}
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

// CreateIfAbsent relies on the (user_id, currency_code) unique index: a
// conflicting uncommitted insert blocks the statement until it commits or
// rolls back.
func (r *postgresWalletRepo) CreateIfAbsent(ctx context.Context, wallet *models.Wallet) (bool, error) {
	now := time.Now().UTC()
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	wallet.CreatedAt, wallet.UpdatedAt = now, now

	const query = `INSERT INTO wallets
		(id, user_id, currency_code, wallet_type, balance, is_primary, created_at, updated_at)
		VALUES (:id, :user_id, :currency_code, :wallet_type, :balance, :is_primary, :created_at, :updated_at)
		ON CONFLICT (user_id, currency_code) DO NOTHING`

	res, err := sqlx.NamedExecContext(ctx, r.db, query, wallet)
	if err != nil {
		return false, fmt.Errorf("create wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create wallet: %w", err)
	}
	return n == 1, nil
}

func (r *postgresWalletRepo) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	const query = `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, balance, id)
	if err != nil {
		r.log.Error("Update balance failed",
			logger.StringField("wallet_id", id.String()),
			logger.ErrorField("error", err))
		return fmt.Errorf("update balance: %w", err)
	}
	return expectOneRow(res, "wallet")
}
