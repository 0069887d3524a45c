package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultMaxRetries = 3

type Store struct {
	db         *sqlx.DB
	log        logger.Logger
	maxRetries int
}

func NewStore(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log, maxRetries: defaultMaxRetries}
}

func (s *Store) Repos() repository.Repositories {
	return newRepositories(s.db, s.log)
}

// WithinTx runs fn in a READ COMMITTED transaction. Balance reads inside fn
// use SELECT ... FOR UPDATE, so concurrent operations on the same wallet
// serialize on the row lock. Serialization failures and deadlocks are retried.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.executeTx(ctx, fn)
		if err == nil {
			return nil
		}

		if !isRetryableError(err) {
			return err
		}

		lastErr = err
		s.log.Warn("Retrying transaction",
			logger.IntField("attempt", attempt),
			logger.ErrorField("error", err))

		backoff := time.Duration(attempt*attempt) * 50 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *Store) executeTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	var isCommitted bool
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.log.Error("Error beginning transaction", logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if err != nil && !isCommitted {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("Transaction rollback failed",
					logger.ErrorField("error", rbErr))
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			} else {
				s.log.Debug("Transaction rolled back",
					logger.ErrorField("error", err))
			}
		}
	}()

	if err = fn(ctx, newRepositories(tx, s.log)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		s.log.Error("Error committing transaction",
			logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", err)
	}

	isCommitted = true
	return nil
}

// 40001 serialization_failure, 40P01 deadlock_detected.
func isRetryableError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func newRepositories(db sqlx.ExtContext, log logger.Logger) repository.Repositories {
	return repository.Repositories{
		Wallets:      NewPostgresWalletRepo(db, log),
		Transactions: &postgresTransactionRepo{db: db},
		Goals:        &postgresGoalRepo{db: db},
		VillageBanks: &postgresVillageBankRepo{db: db},
		Cards:        &postgresCardRepo{db: db},
		Profiles:     &postgresProfileRepo{db: db},
		Activity:     &postgresActivityRepo{db: db},
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, what)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, what)
	}
	return nil
}
