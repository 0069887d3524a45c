package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTransactionLimit = 20
	MaxTransactionLimit     = 100
)

type SnapshotUsecase interface {
	UserSnapshot(ctx context.Context, s models.Session, limit int) (*models.UserSnapshot, error)
}

type snapshotUsecase struct {
	store repository.Store
	log   logger.Logger
}

func NewSnapshotUsecase(store repository.Store, log logger.Logger) SnapshotUsecase {
	if log == nil {
		log = logger.NewNop()
	}
	return &snapshotUsecase{store: store, log: log}
}

// UserSnapshot reads everything the client shows for the caller. The reads are
// independent and run concurrently; any failure fails the whole snapshot.
func (uc *snapshotUsecase) UserSnapshot(ctx context.Context, s models.Session, limit int) (*models.UserSnapshot, error) {
	const op = "get_user_data"
	if err := requireSession(s); err != nil {
		observe(op, err)
		return nil, err
	}
	if limit == 0 {
		limit = DefaultTransactionLimit
	}
	if limit < 1 || limit > MaxTransactionLimit {
		err := validationf("limit must be between 1 and %d", MaxTransactionLimit)
		observe(op, err)
		return nil, err
	}

	repos := uc.store.Repos()
	snap := &models.UserSnapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := repos.Profiles.GetByUserID(gctx, s.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("profile: %w", err)
		}
		snap.Profile = p
		return nil
	})
	g.Go(func() error {
		wallets, err := repos.Wallets.ListByUser(gctx, s.UserID)
		if err != nil {
			return fmt.Errorf("wallets: %w", err)
		}
		snap.Wallets = wallets
		return nil
	})
	g.Go(func() error {
		txs, err := repos.Transactions.ListRecentByUser(gctx, s.UserID, limit)
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		cards, err := repos.Cards.ListByUser(gctx, s.UserID)
		if err != nil {
			return fmt.Errorf("cards: %w", err)
		}
		snap.Cards = cards
		return nil
	})
	g.Go(func() error {
		goals, err := repos.Goals.ListByUser(gctx, s.UserID)
		if err != nil {
			return fmt.Errorf("savings goals: %w", err)
		}
		snap.Goals = goals
		return nil
	})
	g.Go(func() error {
		banks, err := repos.VillageBanks.ListMembershipsByUser(gctx, s.UserID)
		if err != nil {
			return fmt.Errorf("village banks: %w", err)
		}
		snap.VillageBanks = banks
		return nil
	})

	if err := g.Wait(); err != nil {
		uc.log.Error("Failed to load user data",
			logger.StringField("user_id", s.UserID.String()),
			logger.ErrorField("error", err))
		observe(op, err)
		return nil, fmt.Errorf("load user data: %w", err)
	}
	observe(op, nil)
	return snap, nil
}
