// Package memory is an in-process Store. Transactions run one at a time on a
// copy of the data which replaces the live copy only when fn succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	wallets       map[uuid.UUID]models.Wallet
	transactions  []models.Transaction
	goals         map[uuid.UUID]models.SavingsGoal
	banks         map[uuid.UUID]models.VillageBank
	members       map[uuid.UUID]models.VillageBankMember
	contributions []models.VillageBankContribution
	invitations   []models.Invitation
	cards         []models.Card
	profiles      map[uuid.UUID]models.Profile
	activity      []models.ActivityLog
}

func newState() *state {
	return &state{
		wallets:  map[uuid.UUID]models.Wallet{},
		goals:    map[uuid.UUID]models.SavingsGoal{},
		banks:    map[uuid.UUID]models.VillageBank{},
		members:  map[uuid.UUID]models.VillageBankMember{},
		profiles: map[uuid.UUID]models.Profile{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.goals {
		c.goals[k] = v
	}
	for k, v := range s.banks {
		c.banks[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	c.transactions = append([]models.Transaction(nil), s.transactions...)
	c.contributions = append([]models.VillageBankContribution(nil), s.contributions...)
	c.invitations = append([]models.Invitation(nil), s.invitations...)
	c.cards = append([]models.Card(nil), s.cards...)
	c.activity = append([]models.ActivityLog(nil), s.activity...)
	return c
}

type Store struct {
	mu sync.Mutex
	st *state

	// FailOn is consulted before every write with the operation name
	// (e.g. "wallets.update_balance"); a non-nil error aborts the write.
	FailOn func(op string) error
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(&handle{store: s})
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, s.repos(&handle{store: s, tx: work})); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) repos(h *handle) repository.Repositories {
	return repository.Repositories{
		Wallets:      walletRepo{h},
		Transactions: transactionRepo{h},
		Goals:        goalRepo{h},
		VillageBanks: villageBankRepo{h},
		Cards:        cardRepo{h},
		Profiles:     profileRepo{h},
		Activity:     activityRepo{h},
	}
}

// handle reads the transaction copy when tx is set and the live state otherwise.
type handle struct {
	store *Store
	tx    *state
}

func (h *handle) view(fn func(st *state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.st)
}

func (h *handle) write(op string, fn func(st *state) error) error {
	if h.store.FailOn != nil {
		if err := h.store.FailOn(op); err != nil {
			return err
		}
	}
	return h.view(fn)
}

type walletRepo struct{ h *handle }

func (r walletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.h.view(func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return fmt.Errorf("%w: wallet", repository.ErrNotFound)
		}
		out = &w
		return nil
	})
	return out, err
}

func (r walletRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r walletRepo) GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.h.view(func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == userID && w.CurrencyCode == currency {
				w := w
				out = &w
				return nil
			}
		}
		return fmt.Errorf("%w: wallet", repository.ErrNotFound)
	})
	return out, err
}

func (r walletRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	out := []models.Wallet{}
	err := r.h.view(func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == userID {
				out = append(out, w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r walletRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	wallets, err := r.ListByUser(ctx, userID)
	return len(wallets), err
}

func (r walletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.h.write("wallets.create", func(st *state) error {
		for _, w := range st.wallets {
			if w.UserID == wallet.UserID && w.CurrencyCode == wallet.CurrencyCode {
				return fmt.Errorf("%w: wallet %s/%s", repository.ErrDuplicate, wallet.UserID, wallet.CurrencyCode)
			}
		}
		if wallet.ID == uuid.Nil {
			wallet.ID = uuid.New()
		}
		now := time.Now().UTC()
		wallet.CreatedAt, wallet.UpdatedAt = now, now
		st.wallets[wallet.ID] = *wallet
		return nil
	})
}

func (r walletRepo) CreateIfAbsent(ctx context.Context, wallet *models.Wallet) (bool, error) {
	err := r.Create(ctx, wallet)
	if errors.Is(err, repository.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

func (r walletRepo) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.h.write("wallets.update_balance", func(st *state) error {
		w, ok := st.wallets[id]
		if !ok {
			return fmt.Errorf("%w: wallet", repository.ErrNotFound)
		}
		if balance.IsNegative() {
			return fmt.Errorf("wallet %s: balance would become negative", id)
		}
		w.Balance = balance
		w.UpdatedAt = time.Now().UTC()
		st.wallets[id] = w
		return nil
	})
}

type transactionRepo struct{ h *handle }

func (r transactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	return r.h.write("transactions.create", func(st *state) error {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		if len(t.Metadata) == 0 {
			t.Metadata = models.NewMetadata(nil)
		}
		st.transactions = append(st.transactions, *t)
		return nil
	})
}

func (r transactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TransactionStatus, completedAt *time.Time) error {
	return r.h.write("transactions.update_status", func(st *state) error {
		for i := range st.transactions {
			if st.transactions[i].ID != id {
				continue
			}
			if from := st.transactions[i].Status; !from.CanTransition(status) {
				return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, from, status)
			}
			st.transactions[i].Status = status
			st.transactions[i].CompletedAt = completedAt
			return nil
		}
		return fmt.Errorf("%w: transaction", repository.ErrNotFound)
	})
}

func (r transactionRepo) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	out := []models.Transaction{}
	err := r.h.view(func(st *state) error {
		for i := len(st.transactions) - 1; i >= 0; i-- {
			if st.transactions[i].UserID == userID {
				out = append(out, st.transactions[i])
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type goalRepo struct{ h *handle }

func (r goalRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SavingsGoal, error) {
	var out *models.SavingsGoal
	err := r.h.view(func(st *state) error {
		g, ok := st.goals[id]
		if !ok {
			return fmt.Errorf("%w: savings goal", repository.ErrNotFound)
		}
		out = &g
		return nil
	})
	return out, err
}

func (r goalRepo) UpdateCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.h.write("savings_goals.update", func(st *state) error {
		g, ok := st.goals[id]
		if !ok {
			return fmt.Errorf("%w: savings goal", repository.ErrNotFound)
		}
		g.CurrentAmount = amount
		st.goals[id] = g
		return nil
	})
}

func (r goalRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SavingsGoal, error) {
	out := []models.SavingsGoal{}
	err := r.h.view(func(st *state) error {
		for _, g := range st.goals {
			if g.UserID == userID {
				out = append(out, g)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

type villageBankRepo struct{ h *handle }

func (r villageBankRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VillageBank, error) {
	var out *models.VillageBank
	err := r.h.view(func(st *state) error {
		b, ok := st.banks[id]
		if !ok {
			return fmt.Errorf("%w: village bank", repository.ErrNotFound)
		}
		out = &b
		return nil
	})
	return out, err
}

func (r villageBankRepo) GetMember(ctx context.Context, bankID, userID uuid.UUID) (*models.VillageBankMember, error) {
	var out *models.VillageBankMember
	err := r.h.view(func(st *state) error {
		for _, m := range st.members {
			if m.VillageBankID == bankID && m.UserID == userID {
				m := m
				out = &m
				return nil
			}
		}
		return fmt.Errorf("%w: village bank member", repository.ErrNotFound)
	})
	return out, err
}

func (r villageBankRepo) GetMemberForUpdate(ctx context.Context, bankID, userID uuid.UUID) (*models.VillageBankMember, error) {
	return r.GetMember(ctx, bankID, userID)
}

func (r villageBankRepo) UpdateCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.h.write("village_banks.update", func(st *state) error {
		b, ok := st.banks[id]
		if !ok {
			return fmt.Errorf("%w: village bank", repository.ErrNotFound)
		}
		b.CurrentAmount = amount
		st.banks[id] = b
		return nil
	})
}

func (r villageBankRepo) UpdateMemberTotal(ctx context.Context, memberID uuid.UUID, total decimal.Decimal) error {
	return r.h.write("village_bank_members.update", func(st *state) error {
		m, ok := st.members[memberID]
		if !ok {
			return fmt.Errorf("%w: village bank member", repository.ErrNotFound)
		}
		m.TotalContributed = total
		st.members[memberID] = m
		return nil
	})
}

func (r villageBankRepo) CreateContribution(ctx context.Context, c *models.VillageBankContribution) error {
	return r.h.write("village_bank_contributions.create", func(st *state) error {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		st.contributions = append(st.contributions, *c)
		return nil
	})
}

func (r villageBankRepo) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	return r.h.write("invitations.create", func(st *state) error {
		if inv.ID == uuid.Nil {
			inv.ID = uuid.New()
		}
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = time.Now().UTC()
		}
		st.invitations = append(st.invitations, *inv)
		return nil
	})
}

func (r villageBankRepo) ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]models.VillageBankMembership, error) {
	out := []models.VillageBankMembership{}
	err := r.h.view(func(st *state) error {
		for _, m := range st.members {
			if m.UserID != userID {
				continue
			}
			if b, ok := st.banks[m.VillageBankID]; ok {
				out = append(out, models.VillageBankMembership{Member: m, Bank: b})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Member.JoinedAt.After(out[j].Member.JoinedAt) })
	return out, err
}

type cardRepo struct{ h *handle }

func (r cardRepo) Create(ctx context.Context, card *models.Card) error {
	return r.h.write("cards.create", func(st *state) error {
		if card.ID == uuid.Nil {
			card.ID = uuid.New()
		}
		if card.CreatedAt.IsZero() {
			card.CreatedAt = time.Now().UTC()
		}
		st.cards = append(st.cards, *card)
		return nil
	})
}

func (r cardRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Card, error) {
	out := []models.Card{}
	err := r.h.view(func(st *state) error {
		for i := len(st.cards) - 1; i >= 0; i-- {
			if st.cards[i].UserID == userID {
				out = append(out, st.cards[i])
			}
		}
		return nil
	})
	return out, err
}

type profileRepo struct{ h *handle }

func (r profileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var out *models.Profile
	err := r.h.view(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			return fmt.Errorf("%w: profile", repository.ErrNotFound)
		}
		out = &p
		return nil
	})
	return out, err
}

type activityRepo struct{ h *handle }

func (r activityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.h.write("activity_logs.create", func(st *state) error {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		st.activity = append(st.activity, *entry)
		return nil
	})
}
