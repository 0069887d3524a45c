package memory

import (
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/google/uuid"
)

// Seeding and inspection helpers, mostly for tests and local runs.

func (s *Store) PutWallet(w models.Wallet) models.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
		w.UpdatedAt = w.CreatedAt
	}
	if w.WalletType == "" {
		w.WalletType = models.WalletTypeFiat
	}
	s.st.wallets[w.ID] = w
	return w
}

func (s *Store) PutProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.profiles[p.UserID] = p
}

func (s *Store) PutGoal(g models.SavingsGoal) models.SavingsGoal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	s.st.goals[g.ID] = g
	return g
}

func (s *Store) PutVillageBank(b models.VillageBank) models.VillageBank {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.st.banks[b.ID] = b
	return b
}

func (s *Store) PutMember(m models.VillageBankMember) models.VillageBankMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.st.members[m.ID] = m
	return m
}

func (s *Store) Wallet(id uuid.UUID) (models.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.wallets[id]
	return w, ok
}

func (s *Store) Goal(id uuid.UUID) models.SavingsGoal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.goals[id]
}

func (s *Store) VillageBank(id uuid.UUID) models.VillageBank {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.banks[id]
}

func (s *Store) Member(id uuid.UUID) models.VillageBankMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.members[id]
}

func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.st.transactions...)
}

func (s *Store) ActivityLogs() []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ActivityLog(nil), s.st.activity...)
}

func (s *Store) Contributions() []models.VillageBankContribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VillageBankContribution(nil), s.st.contributions...)
}

func (s *Store) Invitations() []models.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Invitation(nil), s.st.invitations...)
}

func (s *Store) Cards() []models.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Card(nil), s.st.cards...)
}
