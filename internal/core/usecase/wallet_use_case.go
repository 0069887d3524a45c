package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletUsecase interface {
	Deposit(ctx context.Context, s models.Session, req models.DepositRequest) (*models.TransactionResult, error)
	Withdraw(ctx context.Context, s models.Session, req models.WithdrawRequest) (*models.TransactionResult, error)
	Send(ctx context.Context, s models.Session, req models.SendRequest) (*models.TransactionResult, error)
	Exchange(ctx context.Context, s models.Session, req models.ExchangeRequest) (*models.TransactionResult, error)
	CreateWallet(ctx context.Context, s models.Session, req models.WalletCreateRequest) (*models.Wallet, error)
}

type walletUsecase struct {
	ledger
}

func NewWalletUsecase(d Deps) WalletUsecase {
	return &walletUsecase{ledger: newLedger(d)}
}

func (uc *walletUsecase) Deposit(ctx context.Context, s models.Session, req models.DepositRequest) (res *models.TransactionResult, err error) {
	const op = "deposit"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	uc.logStart(op, s,
		logger.StringField("wallet_id", req.WalletID.String()),
		logger.StringField("amount", req.Amount.String()))

	cur, err := validateSingle(req.WalletID, "walletId", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethod == "" {
		return nil, validationf("paymentMethod is required")
	}
	fee := uc.pricing.Fee(models.TransactionDeposit, req.Amount, cur.Code)
	if fee.GreaterThanOrEqual(req.Amount) {
		return nil, validationf("amount does not cover the deposit fee of %s", fee)
	}
	ref := uc.refs.Next(PrefixDeposit)

	var tx *models.Transaction
	var wallet *models.Wallet
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		w, err := lockOwnedWallet(ctx, repos, req.WalletID, s.UserID)
		if err != nil {
			return err
		}
		if err := matchCurrency(w, cur); err != nil {
			return err
		}

		now := uc.now()
		t := &models.Transaction{
			UserID:          s.UserID,
			ToWalletID:      &w.ID,
			TransactionType: models.TransactionDeposit,
			Amount:          req.Amount,
			CurrencyCode:    cur.Code,
			Status:          models.StatusCompleted,
			ReferenceNumber: ref,
			Fee:             nullDecimal(fee),
			Description:     optString(req.Description),
			Metadata:        models.NewMetadata(map[string]interface{}{"payment_method": req.PaymentMethod}),
			CreatedAt:       now,
			CompletedAt:     &now,
		}
		if err := repos.Transactions.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := credit(ctx, repos, w, req.Amount.Sub(fee)); err != nil {
			return err
		}
		if err := recordActivity(ctx, repos, s.UserID, "wallet_deposit", "transaction", t.ID, map[string]interface{}{
			"amount":         req.Amount.String(),
			"currency":       cur.Code,
			"payment_method": req.PaymentMethod,
		}); err != nil {
			return err
		}
		tx, wallet = t, w
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.TransactionCompleted(tx, wallet.Balance))
	return newTransactionResult(tx, wallet), nil
}

func (uc *walletUsecase) Withdraw(ctx context.Context, s models.Session, req models.WithdrawRequest) (res *models.TransactionResult, err error) {
	const op = "withdraw"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	uc.logStart(op, s,
		logger.StringField("wallet_id", req.WalletID.String()),
		logger.StringField("amount", req.Amount.String()))

	cur, err := validateSingle(req.WalletID, "walletId", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	if req.WithdrawalMethod == "" {
		return nil, validationf("withdrawalMethod is required")
	}
	fee := uc.pricing.Fee(models.TransactionWithdraw, req.Amount, cur.Code)
	ref := uc.refs.Next(PrefixWithdraw)

	var tx *models.Transaction
	var wallet *models.Wallet
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		w, err := lockOwnedWallet(ctx, repos, req.WalletID, s.UserID)
		if err != nil {
			return err
		}
		if err := matchCurrency(w, cur); err != nil {
			return err
		}
		total := req.Amount.Add(fee)
		if w.Balance.LessThan(total) {
			return ErrInsufficientFunds
		}

		now := uc.now()
		t := &models.Transaction{
			UserID:          s.UserID,
			FromWalletID:    &w.ID,
			TransactionType: models.TransactionWithdraw,
			Amount:          req.Amount,
			CurrencyCode:    cur.Code,
			Status:          models.StatusCompleted,
			ReferenceNumber: ref,
			Fee:             nullDecimal(fee),
			Description:     optString(req.Description),
			Metadata: models.NewMetadata(map[string]interface{}{
				"withdrawal_method": req.WithdrawalMethod,
				"account_details":   req.AccountDetails,
			}),
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := repos.Transactions.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := debit(ctx, repos, w, total); err != nil {
			return err
		}
		if err := recordActivity(ctx, repos, s.UserID, "wallet_withdraw", "transaction", t.ID, map[string]interface{}{
			"amount":            req.Amount.String(),
			"currency":          cur.Code,
			"withdrawal_method": req.WithdrawalMethod,
		}); err != nil {
			return err
		}
		tx, wallet = t, w
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.TransactionCompleted(tx, wallet.Balance))
	return newTransactionResult(tx, wallet), nil
}

func (uc *walletUsecase) CreateWallet(ctx context.Context, s models.Session, req models.WalletCreateRequest) (res *models.Wallet, err error) {
	const op = "wallet_create"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	cur, err := lookupCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	walletType := req.WalletType
	if walletType == "" {
		walletType = cur.Kind
	}
	if walletType != cur.Kind {
		return nil, validationf("%s is a %s currency", cur.Code, cur.Kind)
	}
	uc.logStart(op, s, logger.StringField("currency", cur.Code))

	var wallet *models.Wallet
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Wallets.GetByUserAndCurrency(ctx, s.UserID, cur.Code)
		switch {
		case err == nil:
			return ErrWalletExists
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("get wallet: %w", err)
		}

		n, err := repos.Wallets.CountByUser(ctx, s.UserID)
		if err != nil {
			return fmt.Errorf("count wallets: %w", err)
		}
		w := &models.Wallet{
			UserID:       s.UserID,
			CurrencyCode: cur.Code,
			WalletType:   walletType,
			Balance:      decimal.Zero,
			IsPrimary:    n == 0,
		}
		if err := repos.Wallets.Create(ctx, w); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrWalletExists
			}
			return fmt.Errorf("create wallet: %w", err)
		}
		if err := recordActivity(ctx, repos, s.UserID, "wallet_created", "wallet", w.ID, map[string]interface{}{
			"currency": cur.Code,
		}); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.Event{
		EventType:  events.TypeWalletCreated,
		UserID:     s.UserID,
		ResourceID: wallet.ID,
		Currency:   wallet.CurrencyCode,
		Timestamp:  wallet.CreatedAt,
	})
	return wallet, nil
}

// validateSingle covers the request checks shared by single-wallet operations.
func validateSingle(walletID uuid.UUID, field string, amount decimal.Decimal, currency string) (models.Currency, error) {
	if err := requireID(walletID, field); err != nil {
		return models.Currency{}, err
	}
	cur, err := lookupCurrency(currency)
	if err != nil {
		return models.Currency{}, err
	}
	if err := validateAmount(amount, cur); err != nil {
		return models.Currency{}, err
	}
	return cur, nil
}
