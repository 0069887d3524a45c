package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	// ErrInvalidTransition is returned when a transaction status change is not
	// allowed by models.TransactionStatus.CanTransition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// WalletRepository reads and writes the wallets table. The ForUpdate variants
// take a row lock that is held until the surrounding transaction ends.
type WalletRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
	Create(ctx context.Context, wallet *models.Wallet) error
	// CreateIfAbsent inserts wallet unless the user already has one in that
	// currency, waiting for a concurrent insert of the same pair to settle.
	// It reports whether the row was inserted.
	CreateIfAbsent(ctx context.Context, wallet *models.Wallet) (bool, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, completedAt *time.Time) error
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
}

type SavingsGoalRepository interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SavingsGoal, error)
	UpdateCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SavingsGoal, error)
}

type VillageBankRepository interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VillageBank, error)
	GetMember(ctx context.Context, bankID, userID uuid.UUID) (*models.VillageBankMember, error)
	GetMemberForUpdate(ctx context.Context, bankID, userID uuid.UUID) (*models.VillageBankMember, error)
	UpdateCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	UpdateMemberTotal(ctx context.Context, memberID uuid.UUID, total decimal.Decimal) error
	CreateContribution(ctx context.Context, c *models.VillageBankContribution) error
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]models.VillageBankMembership, error)
}

type CardRepository interface {
	Create(ctx context.Context, card *models.Card) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Card, error)
}

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type ActivityRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
}

// Repositories groups every table accessor bound to one connection or transaction.
type Repositories struct {
	Wallets      WalletRepository
	Transactions TransactionRepository
	Goals        SavingsGoalRepository
	VillageBanks VillageBankRepository
	Cards        CardRepository
	Profiles     ProfileRepository
	Activity     ActivityRepository
}

// Store hands out repositories. WithinTx runs fn in a single atomic
// transaction: fn's error rolls back every write made through repos.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
