package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/pricing"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
)

// Send moves amount from the caller's wallet to the recipient's wallet of the
// same currency, creating that wallet on first use. The sender pays the fee.
func (uc *walletUsecase) Send(ctx context.Context, s models.Session, req models.SendRequest) (res *models.TransactionResult, err error) {
	const op = "send"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	uc.logStart(op, s,
		logger.StringField("from_wallet_id", req.FromWalletID.String()),
		logger.StringField("to_user_id", req.ToUserID.String()),
		logger.StringField("amount", req.Amount.String()))

	cur, err := validateSingle(req.FromWalletID, "fromWalletId", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	if err := requireID(req.ToUserID, "toUserId"); err != nil {
		return nil, err
	}
	if req.ToUserID == s.UserID {
		return nil, validationf("cannot send to yourself")
	}
	fee := uc.pricing.Fee(models.TransactionSend, req.Amount, cur.Code)
	ref := uc.refs.Next(PrefixSend)
	recipient := req.ToUserID

	var sendTx, receiveTx *models.Transaction
	var from, to *models.Wallet
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Profiles.GetByUserID(ctx, recipient); err != nil {
			return mapNotFound(err, ErrRecipientNotFound)
		}
		source, err := repos.Wallets.GetByID(ctx, req.FromWalletID)
		if err != nil {
			return mapNotFound(err, ErrWalletNotFound)
		}
		if !source.OwnedBy(s.UserID) {
			return ErrWalletNotFound
		}
		if err := matchCurrency(source, cur); err != nil {
			return err
		}
		targetID, err := recipientWallet(ctx, repos, recipient, cur)
		if err != nil {
			return err
		}

		src, dst, err := lockWalletPair(ctx, repos, source.ID, targetID)
		if err != nil {
			return err
		}
		total := req.Amount.Add(fee)
		if src.Balance.LessThan(total) {
			return ErrInsufficientFunds
		}

		now := uc.now()
		st := &models.Transaction{
			UserID:          s.UserID,
			FromWalletID:    &src.ID,
			ToWalletID:      &dst.ID,
			RecipientUserID: &recipient,
			TransactionType: models.TransactionSend,
			Amount:          req.Amount,
			CurrencyCode:    cur.Code,
			Status:          models.StatusPending,
			ReferenceNumber: ref,
			Fee:             nullDecimal(fee),
			Description:     optString(req.Description),
			Metadata:        models.NewMetadata(map[string]interface{}{"recipient_user_id": recipient.String()}),
			CreatedAt:       now,
		}
		if err := repos.Transactions.Create(ctx, st); err != nil {
			return fmt.Errorf("create send transaction: %w", err)
		}
		if err := debit(ctx, repos, src, total); err != nil {
			return err
		}
		if err := credit(ctx, repos, dst, req.Amount); err != nil {
			return err
		}
		if err := repos.Transactions.UpdateStatus(ctx, st.ID, models.StatusCompleted, &now); err != nil {
			return fmt.Errorf("complete send transaction: %w", err)
		}
		st.Status, st.CompletedAt = models.StatusCompleted, &now

		rt := &models.Transaction{
			UserID:          recipient,
			FromWalletID:    &src.ID,
			ToWalletID:      &dst.ID,
			RecipientUserID: &recipient,
			TransactionType: models.TransactionReceive,
			Amount:          req.Amount,
			CurrencyCode:    cur.Code,
			Status:          models.StatusCompleted,
			ReferenceNumber: ref,
			Description:     optString(req.Description),
			Metadata:        models.NewMetadata(map[string]interface{}{"sender_user_id": s.UserID.String()}),
			CreatedAt:       now,
			CompletedAt:     &now,
		}
		if err := repos.Transactions.Create(ctx, rt); err != nil {
			return fmt.Errorf("create receive transaction: %w", err)
		}
		if err := recordActivity(ctx, repos, s.UserID, "wallet_send", "transaction", st.ID, map[string]interface{}{
			"amount":            req.Amount.String(),
			"currency":          cur.Code,
			"recipient_user_id": recipient.String(),
		}); err != nil {
			return err
		}
		sendTx, receiveTx, from, to = st, rt, src, dst
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx,
		events.TransactionCompleted(sendTx, from.Balance),
		events.TransactionCompleted(receiveTx, to.Balance))

	res = newTransactionResult(sendTx, from)
	res.RecipientUserID = &recipient
	res.ToWalletID = &to.ID
	return res, nil
}

// recipientWallet returns the id of userID's wallet in cur, creating it when missing.
func recipientWallet(ctx context.Context, repos repository.Repositories, userID uuid.UUID, cur models.Currency) (uuid.UUID, error) {
	w, err := repos.Wallets.GetByUserAndCurrency(ctx, userID, cur.Code)
	if err == nil {
		return w.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("get recipient wallet: %w", err)
	}

	n, err := repos.Wallets.CountByUser(ctx, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("count recipient wallets: %w", err)
	}
	w = &models.Wallet{
		UserID:       userID,
		CurrencyCode: cur.Code,
		WalletType:   cur.Kind,
		IsPrimary:    n == 0,
	}
	created, err := repos.Wallets.CreateIfAbsent(ctx, w)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create recipient wallet: %w", err)
	}
	if created {
		return w.ID, nil
	}

	// a concurrent send created it first
	w, err = repos.Wallets.GetByUserAndCurrency(ctx, userID, cur.Code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get recipient wallet: %w", err)
	}
	return w.ID, nil
}

// Exchange converts between two of the caller's wallets at the pricing
// service's rate. The fee is taken from amount before conversion.
func (uc *walletUsecase) Exchange(ctx context.Context, s models.Session, req models.ExchangeRequest) (res *models.TransactionResult, err error) {
	const op = "exchange"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	uc.logStart(op, s,
		logger.StringField("from_wallet_id", req.FromWalletID.String()),
		logger.StringField("to_wallet_id", req.ToWalletID.String()),
		logger.StringField("amount", req.Amount.String()))

	fromCur, err := validateSingle(req.FromWalletID, "fromWalletId", req.Amount, req.FromCurrency)
	if err != nil {
		return nil, err
	}
	if err := requireID(req.ToWalletID, "toWalletId"); err != nil {
		return nil, err
	}
	if req.FromWalletID == req.ToWalletID {
		return nil, validationf("fromWalletId and toWalletId must differ")
	}
	toCur, err := lookupCurrency(req.ToCurrency)
	if err != nil {
		return nil, err
	}
	if fromCur.Code == toCur.Code {
		return nil, validationf("fromCurrency and toCurrency must differ")
	}

	quote, err := uc.pricing.QuoteExchange(req.Amount, fromCur.Code, toCur.Code)
	if err != nil {
		if errors.Is(err, pricing.ErrUnsupportedPair) {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedCurrency, fromCur.Code, toCur.Code)
		}
		return nil, err
	}
	if !req.ExchangeRate.IsZero() && !req.ExchangeRate.Round(6).Equal(quote.Rate.Round(6)) {
		return nil, fmt.Errorf("%w: current rate is %s", ErrStaleQuote, quote.Rate.Round(6))
	}
	if !quote.Converted.IsPositive() {
		return nil, validationf("amount is too small to exchange")
	}
	ref := uc.refs.Next(PrefixExchange)

	var tx *models.Transaction
	var from, to *models.Wallet
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		src, dst, err := lockWalletPair(ctx, repos, req.FromWalletID, req.ToWalletID)
		if err != nil {
			return err
		}
		if !src.OwnedBy(s.UserID) || !dst.OwnedBy(s.UserID) {
			return ErrWalletNotFound
		}
		if err := matchCurrency(src, fromCur); err != nil {
			return err
		}
		if err := matchCurrency(dst, toCur); err != nil {
			return err
		}
		if src.Balance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}

		now := uc.now()
		t := &models.Transaction{
			UserID:          s.UserID,
			FromWalletID:    &src.ID,
			ToWalletID:      &dst.ID,
			TransactionType: models.TransactionExchange,
			Amount:          req.Amount,
			CurrencyCode:    fromCur.Code,
			Status:          models.StatusCompleted,
			ReferenceNumber: ref,
			ExchangeRate:    nullDecimal(quote.Rate),
			Fee:             nullDecimal(quote.Fee),
			Metadata: models.NewMetadata(map[string]interface{}{
				"to_currency":      toCur.Code,
				"converted_amount": quote.Converted.String(),
			}),
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := repos.Transactions.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := debit(ctx, repos, src, req.Amount); err != nil {
			return err
		}
		if err := credit(ctx, repos, dst, quote.Converted); err != nil {
			return err
		}
		if err := recordActivity(ctx, repos, s.UserID, "currency_exchange", "transaction", t.ID, map[string]interface{}{
			"from_currency":    fromCur.Code,
			"to_currency":      toCur.Code,
			"amount":           req.Amount.String(),
			"converted_amount": quote.Converted.String(),
		}); err != nil {
			return err
		}
		tx, from, to = t, src, dst
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.TransactionCompleted(tx, from.Balance))

	res = newTransactionResult(tx, from)
	res.ToWalletID = &to.ID
	res.ToCurrency = toCur.Code
	res.ConvertedAmount = &quote.Converted
	res.ExchangeRate = &quote.Rate
	return res, nil
}
