package usecase_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/pricing"
	"github.com/Nzyazin/walletd/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var referencePattern = regexp.MustCompile(`^[A-Z]{3}-\d{13}-[0-9A-Z]{6}$`)

func TestSend_HundredThousandKwachaScenario(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	a := f.wallet(alice, "MWK", "100000")

	res, err := f.wallets.Send(context.Background(), alice, models.SendRequest{
		FromWalletID: a.ID,
		ToUserID:     bob.UserID,
		Amount:       dec("20000"),
		Currency:     "MWK",
	})
	require.NoError(t, err)

	assertBalance(t, f, a.ID, "80000")
	require.NotNil(t, res.ToWalletID)
	assertBalance(t, f, *res.ToWalletID, "20000")
	b, _ := f.store.Wallet(*res.ToWalletID)
	assert.Equal(t, bob.UserID, b.UserID)
	assert.True(t, b.IsPrimary)

	txs := f.store.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionSend, txs[0].TransactionType)
	assert.Equal(t, models.TransactionReceive, txs[1].TransactionType)
	for _, tx := range txs {
		assert.Equal(t, models.StatusCompleted, tx.Status)
		assert.Equal(t, res.ReferenceNumber, tx.ReferenceNumber)
		assert.NotNil(t, tx.CompletedAt)
	}
	assert.Equal(t, alice.UserID, txs[0].UserID)
	assert.Equal(t, bob.UserID, txs[1].UserID)
	assert.Regexp(t, referencePattern, res.ReferenceNumber)
	assert.Contains(t, res.ReferenceNumber, "SND-")
	assert.True(t, res.NewBalance.Equal(dec("80000")))
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Len(t, f.store.ActivityLogs(), 1)
}

func TestSend_ConservesMoneyWithFee(t *testing.T) {
	f := newFixture(t, withFees(pricing.FeeSchedule{Send: dec("1")}))
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	a := f.wallet(alice, "MWK", "50000")
	b := f.wallet(bob, "MWK", "1000")

	res, err := f.wallets.Send(context.Background(), alice, models.SendRequest{
		FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("20000"), Currency: "mwk",
	})
	require.NoError(t, err)

	assert.True(t, res.Fee.Equal(dec("200")))
	assertBalance(t, f, a.ID, "29800")
	assertBalance(t, f, b.ID, "21000")
	assert.Equal(t, b.ID, *res.ToWalletID)
}

func TestSend_Rejections(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	mallory := f.user(t, "mallory")
	a := f.wallet(alice, "MWK", "100")
	m := f.wallet(mallory, "MWK", "100")
	stranger := uuid.New()

	tests := []struct {
		name string
		s    models.Session
		req  models.SendRequest
		want error
	}{
		{"no session", models.Session{}, models.SendRequest{}, usecase.ErrUnauthorized},
		{"zero amount", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("0"), Currency: "MWK"}, usecase.ErrInvalidAmount},
		{"negative amount", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("-5"), Currency: "MWK"}, usecase.ErrValidation},
		{"too precise", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("1.001"), Currency: "MWK"}, usecase.ErrValidation},
		{"unknown currency", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("1"), Currency: "XYZ"}, usecase.ErrUnsupportedCurrency},
		{"self", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: alice.UserID, Amount: dec("1"), Currency: "MWK"}, usecase.ErrValidation},
		{"no recipient profile", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: stranger, Amount: dec("1"), Currency: "MWK"}, usecase.ErrRecipientNotFound},
		{"foreign wallet", alice, models.SendRequest{FromWalletID: m.ID, ToUserID: bob.UserID, Amount: dec("1"), Currency: "MWK"}, usecase.ErrWalletNotFound},
		{"currency mismatch", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("1"), Currency: "USD"}, usecase.ErrCurrencyMismatch},
		{"insufficient", alice, models.SendRequest{FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("100.01"), Currency: "MWK"}, usecase.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.wallets.Send(context.Background(), tt.s, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assertBalance(t, f, a.ID, "100")
			assertBalance(t, f, m.ID, "100")
			assert.Empty(t, f.store.Transactions())
		})
	}
	assert.ErrorIs(t, usecase.ErrRecipientNotFound, usecase.ErrNotFound)
}

func TestSend_ConcurrentFullBalanceOnlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	a := f.wallet(alice, "MWK", "5000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []models.Session{bob, carol} {
		wg.Add(1)
		go func(i int, to models.Session) {
			defer wg.Done()
			_, errs[i] = f.wallets.Send(context.Background(), alice, models.SendRequest{
				FromWalletID: a.ID, ToUserID: to.UserID, Amount: dec("5000"), Currency: "MWK",
			})
		}(i, to)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, usecase.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assertBalance(t, f, a.ID, "0")
	assert.Len(t, f.store.Transactions(), 2)
}

func TestSend_RollsBackWhenCompletionFails(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	a := f.wallet(alice, "MWK", "1000")
	f.store.FailOn = func(op string) error {
		if op == "transactions.update_status" {
			return errors.New("connection reset")
		}
		return nil
	}

	_, err := f.wallets.Send(context.Background(), alice, models.SendRequest{
		FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("400"), Currency: "MWK",
	})
	require.Error(t, err)
	assert.False(t, usecase.IsClientError(err))

	assertBalance(t, f, a.ID, "1000")
	assert.Empty(t, f.store.Transactions())
	assert.Empty(t, f.store.ActivityLogs())
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestSend_PublishesBothSidesAfterCommit(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	a := f.wallet(alice, "MWK", "1000")

	_, err := f.wallets.Send(context.Background(), alice, models.SendRequest{
		FromWalletID: a.ID, ToUserID: bob.UserID, Amount: dec("250"), Currency: "MWK",
	})
	require.NoError(t, err)

	f.pub.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(evts []events.Event) bool {
		return len(evts) == 2 &&
			evts[0].UserID == alice.UserID && evts[0].BalanceAfter.Equal(dec("750")) &&
			evts[1].UserID == bob.UserID && evts[1].TransactionType == models.TransactionReceive
	}))
}

func TestDeposit_PublisherFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	uc := usecase.NewWalletUsecase(usecase.Deps{Store: f.store, Publisher: pub})
	alice := f.user(t, "alice")
	a := f.wallet(alice, "USD", "0")

	res, err := uc.Deposit(context.Background(), alice, models.DepositRequest{
		WalletID: a.ID, Amount: dec("25.50"), Currency: "USD", PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(dec("25.5")))
	pub.AssertExpectations(t)
}

func TestDeposit_CreditsAmountLessFee(t *testing.T) {
	f := newFixture(t, withFees(pricing.FeeSchedule{Deposit: dec("2.5")}))
	alice := f.user(t, "alice")
	a := f.wallet(alice, "MWK", "100")

	res, err := f.wallets.Deposit(context.Background(), alice, models.DepositRequest{
		WalletID: a.ID, Amount: dec("1000"), Currency: "MWK", PaymentMethod: "airtel_money", Description: "top up",
	})
	require.NoError(t, err)

	assertBalance(t, f, a.ID, "1075")
	assert.True(t, res.Fee.Equal(dec("25")))
	assert.Equal(t, models.TransactionDeposit, res.Type)
	assert.Contains(t, res.ReferenceNumber, "DEP-")

	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, a.ID, *txs[0].ToWalletID)
	assert.Equal(t, "top up", *txs[0].Description)
	assert.JSONEq(t, `{"payment_method":"airtel_money"}`, string(txs[0].Metadata))
	assert.Equal(t, fixedNow, txs[0].CreatedAt)
}

func TestDeposit_DuplicateRequestsApplyTwice(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	a := f.wallet(alice, "MWK", "0")
	req := models.DepositRequest{WalletID: a.ID, Amount: dec("500"), Currency: "MWK", PaymentMethod: "bank"}

	first, err := f.wallets.Deposit(context.Background(), alice, req)
	require.NoError(t, err)
	second, err := f.wallets.Deposit(context.Background(), alice, req)
	require.NoError(t, err)

	// Replays are only suppressed at the HTTP layer with an Idempotency-Key.
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.ReferenceNumber, second.ReferenceNumber)
	assert.Len(t, f.store.Transactions(), 2)
	assertBalance(t, f, a.ID, "1000")
}

func TestDeposit_Validation(t *testing.T) {
	f := newFixture(t, withFees(pricing.FeeSchedule{Deposit: dec("100")}))
	alice := f.user(t, "alice")
	a := f.wallet(alice, "MWK", "0")

	_, err := f.wallets.Deposit(context.Background(), alice, models.DepositRequest{WalletID: a.ID, Amount: dec("10"), Currency: "MWK"})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = f.wallets.Deposit(context.Background(), alice, models.DepositRequest{Amount: dec("10"), Currency: "MWK", PaymentMethod: "card"})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = f.wallets.Deposit(context.Background(), alice, models.DepositRequest{WalletID: a.ID, Amount: dec("10"), Currency: "MWK", PaymentMethod: "card"})
	assert.ErrorIs(t, err, usecase.ErrValidation, "fee equal to amount")
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, withFees(pricing.FeeSchedule{Withdraw: dec("1")}))
	alice := f.user(t, "alice")
	a := f.wallet(alice, "MWK", "1010")
	req := models.WithdrawRequest{
		WalletID:         a.ID,
		Amount:           dec("1000"),
		Currency:         "MWK",
		WithdrawalMethod: "bank_transfer",
		AccountDetails:   map[string]interface{}{"account": "0012345"},
	}

	res, err := f.wallets.Withdraw(context.Background(), alice, req)
	require.NoError(t, err)
	assertBalance(t, f, a.ID, "0")
	assert.True(t, res.Fee.Equal(dec("10")))
	assert.Contains(t, res.ReferenceNumber, "WDR-")

	_, err = f.wallets.Withdraw(context.Background(), alice, req)
	assert.ErrorIs(t, err, usecase.ErrInsufficientFunds)
	assert.Len(t, f.store.Transactions(), 1)

	req.WithdrawalMethod = ""
	_, err = f.wallets.Withdraw(context.Background(), alice, req)
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestExchange_RoundTripWithoutFee(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	usd := f.wallet(alice, "USD", "100")
	mwk := f.wallet(alice, "MWK", "0")

	res, err := f.wallets.Exchange(context.Background(), alice, models.ExchangeRequest{
		FromWalletID: usd.ID, ToWalletID: mwk.ID, Amount: dec("100"),
		FromCurrency: "USD", ToCurrency: "MWK", ExchangeRate: dec("1750"),
	})
	require.NoError(t, err)
	assert.True(t, res.ConvertedAmount.Equal(dec("175000")))
	assert.True(t, res.ExchangeRate.Equal(dec("1750")))
	assert.Equal(t, "MWK", res.ToCurrency)
	assertBalance(t, f, usd.ID, "0")
	assertBalance(t, f, mwk.ID, "175000")

	_, err = f.wallets.Exchange(context.Background(), alice, models.ExchangeRequest{
		FromWalletID: mwk.ID, ToWalletID: usd.ID, Amount: dec("175000"),
		FromCurrency: "MWK", ToCurrency: "USD",
	})
	require.NoError(t, err)
	assertBalance(t, f, usd.ID, "100")
	assertBalance(t, f, mwk.ID, "0")
}

func TestExchange_FeeAppliedOncePerLeg(t *testing.T) {
	f := newFixture(t, withFees(pricing.FeeSchedule{Exchange: dec("1")}))
	alice := f.user(t, "alice")
	usd := f.wallet(alice, "USD", "100")
	mwk := f.wallet(alice, "MWK", "0")

	res, err := f.wallets.Exchange(context.Background(), alice, models.ExchangeRequest{
		FromWalletID: usd.ID, ToWalletID: mwk.ID, Amount: dec("100"), FromCurrency: "USD", ToCurrency: "MWK",
	})
	require.NoError(t, err)
	assert.True(t, res.Fee.Equal(dec("1")))
	assertBalance(t, f, usd.ID, "0")
	assertBalance(t, f, mwk.ID, "173250")

	_, err = f.wallets.Exchange(context.Background(), alice, models.ExchangeRequest{
		FromWalletID: mwk.ID, ToWalletID: usd.ID, Amount: dec("173250"), FromCurrency: "MWK", ToCurrency: "USD",
	})
	require.NoError(t, err)
	assertBalance(t, f, usd.ID, "98.01")
}

func TestExchange_Rejections(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	usd := f.wallet(alice, "USD", "10")
	mwk := f.wallet(alice, "MWK", "0")
	bobEUR := f.wallet(bob, "EUR", "0")

	tests := []struct {
		name string
		req  models.ExchangeRequest
		want error
	}{
		{"stale quote", models.ExchangeRequest{FromWalletID: usd.ID, ToWalletID: mwk.ID, Amount: dec("5"), FromCurrency: "USD", ToCurrency: "MWK", ExchangeRate: dec("1700")}, usecase.ErrStaleQuote},
		{"same currency", models.ExchangeRequest{FromWalletID: usd.ID, ToWalletID: mwk.ID, Amount: dec("5"), FromCurrency: "USD", ToCurrency: "usd"}, usecase.ErrValidation},
		{"same wallet", models.ExchangeRequest{FromWalletID: usd.ID, ToWalletID: usd.ID, Amount: dec("5"), FromCurrency: "USD", ToCurrency: "MWK"}, usecase.ErrValidation},
		{"foreign target", models.ExchangeRequest{FromWalletID: usd.ID, ToWalletID: bobEUR.ID, Amount: dec("5"), FromCurrency: "USD", ToCurrency: "EUR"}, usecase.ErrWalletNotFound},
		{"target currency mismatch", models.ExchangeRequest{FromWalletID: usd.ID, ToWalletID: mwk.ID, Amount: dec("5"), FromCurrency: "USD", ToCurrency: "EUR"}, usecase.ErrCurrencyMismatch},
		{"insufficient", models.ExchangeRequest{FromWalletID: usd.ID, ToWalletID: mwk.ID, Amount: dec("10.01"), FromCurrency: "USD", ToCurrency: "MWK"}, usecase.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.wallets.Exchange(context.Background(), alice, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assertBalance(t, f, usd.ID, "10")
			assertBalance(t, f, mwk.ID, "0")
		})
	}
}

func TestCreateWallet(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	first, err := f.wallets.CreateWallet(context.Background(), alice, models.WalletCreateRequest{Currency: "mwk"})
	require.NoError(t, err)
	assert.True(t, first.IsPrimary)
	assert.Equal(t, "MWK", first.CurrencyCode)
	assert.Equal(t, models.WalletTypeFiat, first.WalletType)
	assert.True(t, first.Balance.IsZero())

	second, err := f.wallets.CreateWallet(context.Background(), alice, models.WalletCreateRequest{Currency: "BTC"})
	require.NoError(t, err)
	assert.False(t, second.IsPrimary)
	assert.Equal(t, models.WalletTypeCrypto, second.WalletType)

	_, err = f.wallets.CreateWallet(context.Background(), alice, models.WalletCreateRequest{Currency: "MWK"})
	assert.ErrorIs(t, err, usecase.ErrWalletExists)

	_, err = f.wallets.CreateWallet(context.Background(), alice, models.WalletCreateRequest{Currency: "ETH", WalletType: models.WalletTypeFiat})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = f.wallets.CreateWallet(context.Background(), alice, models.WalletCreateRequest{Currency: "DOGE"})
	assert.ErrorIs(t, err, usecase.ErrUnsupportedCurrency)

	assert.Len(t, f.store.ActivityLogs(), 2)
}

func TestReferenceGenerator_UniqueWithinMillisecond(t *testing.T) {
	g := usecase.NewReferenceGenerator()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		ref := g.Next(usecase.PrefixExchange)
		require.Regexp(t, referencePattern, ref)
		require.False(t, seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
}
