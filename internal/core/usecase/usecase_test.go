package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/pricing"
	"github.com/Nzyazin/walletd/internal/core/repository/memory"
	"github.com/Nzyazin/walletd/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var fixedNow = time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, evts ...events.Event) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}

type fixture struct {
	store   *memory.Store
	pub     *mockPublisher
	wallets usecase.WalletUsecase
	savings usecase.SavingsUsecase
	cards   usecase.CardUsecase
	reader  usecase.SnapshotUsecase
}

type fixtureOption func(*usecase.Deps)

func withFees(f pricing.FeeSchedule) fixtureOption {
	return func(d *usecase.Deps) {
		d.Pricing = pricing.NewService(nil, f, nil)
	}
}

func withCardPrices(prices map[models.CardType]decimal.Decimal) fixtureOption {
	return func(d *usecase.Deps) {
		d.Pricing = pricing.NewService(nil, pricing.FeeSchedule{}, prices)
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	d := usecase.Deps{
		Store:     store,
		Publisher: pub,
		Now:       func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&d)
	}
	return &fixture{
		store:   store,
		pub:     pub,
		wallets: usecase.NewWalletUsecase(d),
		savings: usecase.NewSavingsUsecase(d),
		cards:   usecase.NewCardUsecase(d),
		reader:  usecase.NewSnapshotUsecase(store, nil),
	}
}

func (f *fixture) user(t *testing.T, name string) models.Session {
	t.Helper()
	s := models.Session{UserID: uuid.New(), Email: name + "@example.com"}
	f.store.PutProfile(models.Profile{UserID: s.UserID, FullName: name, Email: s.Email})
	return s
}

func (f *fixture) wallet(s models.Session, currency string, balance string) models.Wallet {
	return f.store.PutWallet(models.Wallet{
		UserID:       s.UserID,
		CurrencyCode: currency,
		Balance:      decimal.RequireFromString(balance),
	})
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	w, ok := f.store.Wallet(id)
	if !ok {
		t.Fatalf("wallet %s not found", id)
	}
	return w.Balance
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertBalance(t *testing.T, f *fixture, id uuid.UUID, want string) {
	t.Helper()
	got := f.balance(t, id)
	if !got.Equal(dec(want)) {
		t.Errorf("wallet %s balance = %s, want %s", id, got, want)
	}
}
