package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/pricing"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deps are shared by every use case constructor. Zero values get defaults.
type Deps struct {
	Store     repository.Store
	Pricing   *pricing.Service
	Publisher events.Publisher
	Refs      *ReferenceGenerator
	Log       logger.Logger
	Now       func() time.Time
}

// ledger holds the steps common to all money-movement operations.
type ledger struct {
	store     repository.Store
	pricing   *pricing.Service
	publisher events.Publisher
	refs      *ReferenceGenerator
	log       logger.Logger
	now       func() time.Time
}

func newLedger(d Deps) ledger {
	l := ledger{
		store:     d.Store,
		pricing:   d.Pricing,
		publisher: d.Publisher,
		refs:      d.Refs,
		log:       d.Log,
		now:       d.Now,
	}
	if l.pricing == nil {
		l.pricing = pricing.NewService(nil, pricing.FeeSchedule{}, nil)
	}
	if l.publisher == nil {
		l.publisher = events.NewNopPublisher()
	}
	if l.refs == nil {
		l.refs = NewReferenceGenerator()
	}
	if l.log == nil {
		l.log = logger.NewNop()
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	return l
}

func requireSession(s models.Session) error {
	if !s.Valid() {
		return ErrUnauthorized
	}
	return nil
}

// validateAmount checks amount > 0 and that it fits the currency's precision.
func validateAmount(amount decimal.Decimal, cur models.Currency) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Round(cur.Decimals).Equal(amount) {
		return validationf("amount has more than %d decimal places for %s", cur.Decimals, cur.Code)
	}
	return nil
}

func lookupCurrency(code string) (models.Currency, error) {
	if code == "" {
		return models.Currency{}, validationf("currency is required")
	}
	cur, ok := models.LookupCurrency(code)
	if !ok {
		return models.Currency{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return cur, nil
}

func requireID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return validationf("%s is required", field)
	}
	return nil
}

// lockOwnedWallet row-locks the wallet and hides wallets of other users.
func lockOwnedWallet(ctx context.Context, repos repository.Repositories, id, userID uuid.UUID) (*models.Wallet, error) {
	w, err := repos.Wallets.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrWalletNotFound)
	}
	if !w.OwnedBy(userID) {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

// lockWalletPair locks both wallets in ascending id order so two operations
// touching the same pair cannot deadlock.
func lockWalletPair(ctx context.Context, repos repository.Repositories, a, b uuid.UUID) (*models.Wallet, *models.Wallet, error) {
	first, second := a, b
	swapped := false
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
		swapped = true
	}
	w1, err := repos.Wallets.GetByIDForUpdate(ctx, first)
	if err != nil {
		return nil, nil, mapNotFound(err, ErrWalletNotFound)
	}
	w2, err := repos.Wallets.GetByIDForUpdate(ctx, second)
	if err != nil {
		return nil, nil, mapNotFound(err, ErrWalletNotFound)
	}
	if swapped {
		return w2, w1, nil
	}
	return w1, w2, nil
}

func mapNotFound(err, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}

func matchCurrency(w *models.Wallet, cur models.Currency) error {
	if w.CurrencyCode != cur.Code {
		return fmt.Errorf("%w: wallet holds %s, request is %s", ErrCurrencyMismatch, w.CurrencyCode, cur.Code)
	}
	return nil
}

func debit(ctx context.Context, repos repository.Repositories, w *models.Wallet, total decimal.Decimal) error {
	if w.Balance.LessThan(total) {
		return ErrInsufficientFunds
	}
	next := w.Balance.Sub(total)
	if err := repos.Wallets.UpdateBalance(ctx, w.ID, next); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	w.Balance = next
	return nil
}

func credit(ctx context.Context, repos repository.Repositories, w *models.Wallet, amount decimal.Decimal) error {
	next := w.Balance.Add(amount)
	if err := repos.Wallets.UpdateBalance(ctx, w.ID, next); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	w.Balance = next
	return nil
}

func recordActivity(ctx context.Context, repos repository.Repositories, userID uuid.UUID, action, resourceType string, resourceID uuid.UUID, meta map[string]interface{}) error {
	entry := &models.ActivityLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Metadata:     models.NewMetadata(meta),
	}
	if err := repos.Activity.Create(ctx, entry); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newTransactionResult(tx *models.Transaction, w *models.Wallet) *models.TransactionResult {
	res := &models.TransactionResult{
		ID:              tx.ID,
		ReferenceNumber: tx.ReferenceNumber,
		Type:            tx.TransactionType,
		Amount:          tx.Amount,
		Currency:        tx.CurrencyCode,
		Status:          tx.Status,
		Timestamp:       tx.CreatedAt,
		WalletID:        w.ID,
		NewBalance:      w.Balance,
		Fee:             decimal.Zero,
	}
	if tx.Fee.Valid {
		res.Fee = tx.Fee.Decimal
	}
	return res
}

// publish runs after commit. The ledger is already durable, so failures are
// only logged.
func (l *ledger) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := l.publisher.Publish(context.WithoutCancel(ctx), evts...); err != nil {
		l.log.Warn("Failed to publish events",
			logger.StringField("event_type", evts[0].EventType),
			logger.IntField("count", len(evts)),
			logger.ErrorField("error", err))
	}
}

func (l *ledger) logStart(op string, s models.Session, fields ...logger.Field) {
	l.log.Info("Starting operation",
		append([]logger.Field{
			logger.StringField("operation", op),
			logger.StringField("user_id", s.UserID.String()),
		}, fields...)...)
}

// finish records the outcome of op in logs and metrics and returns err unchanged.
func (l *ledger) finish(op string, s models.Session, err error) error {
	observe(op, err)
	switch {
	case err == nil:
		l.log.Info("Operation completed",
			logger.StringField("operation", op),
			logger.StringField("user_id", s.UserID.String()))
	case IsClientError(err):
		l.log.Warn("Operation rejected",
			logger.StringField("operation", op),
			logger.StringField("user_id", s.UserID.String()),
			logger.ErrorField("error", err))
	default:
		l.log.Error("Operation failed",
			logger.StringField("operation", op),
			logger.StringField("user_id", s.UserID.String()),
			logger.ErrorField("error", err))
	}
	return err
}
