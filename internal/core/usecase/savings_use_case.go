package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
	"github.com/google/uuid"
)

const invitationTTL = 7 * 24 * time.Hour

type SavingsUsecase interface {
	ContributeToGoal(ctx context.Context, s models.Session, req models.GoalContributeRequest) (*models.TransactionResult, error)
	ContributeToVillageBank(ctx context.Context, s models.Session, req models.VillageBankContributeRequest) (*models.TransactionResult, error)
	InviteToVillageBank(ctx context.Context, s models.Session, req models.VillageBankInviteRequest) (*models.Invitation, error)
}

type savingsUsecase struct {
	ledger
}

func NewSavingsUsecase(d Deps) SavingsUsecase {
	return &savingsUsecase{ledger: newLedger(d)}
}

// ContributeToGoal moves amount from a wallet into one of the caller's
// savings goals. A contribution may reach the target but not pass it.
func (uc *savingsUsecase) ContributeToGoal(ctx context.Context, s models.Session, req models.GoalContributeRequest) (res *models.TransactionResult, err error) {
	const op = "goal_contribute"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	uc.logStart(op, s,
		logger.StringField("goal_id", req.GoalID.String()),
		logger.StringField("wallet_id", req.WalletID.String()),
		logger.StringField("amount", req.Amount.String()))

	if err := requireID(req.GoalID, "goalId"); err != nil {
		return nil, err
	}
	cur, err := validateSingle(req.WalletID, "walletId", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	ref := uc.refs.Next(PrefixGoal)

	var tx *models.Transaction
	var wallet *models.Wallet
	var goal *models.SavingsGoal
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		w, err := lockOwnedWallet(ctx, repos, req.WalletID, s.UserID)
		if err != nil {
			return err
		}
		if err := matchCurrency(w, cur); err != nil {
			return err
		}
		g, err := repos.Goals.GetByIDForUpdate(ctx, req.GoalID)
		if err != nil {
			return mapNotFound(err, ErrGoalNotFound)
		}
		if g.UserID != s.UserID {
			return ErrGoalNotFound
		}
		if !g.IsActive {
			return validationf("savings goal is not active")
		}
		if g.CurrencyCode != cur.Code {
			return fmt.Errorf("%w: goal is in %s", ErrCurrencyMismatch, g.CurrencyCode)
		}
		next := g.CurrentAmount.Add(req.Amount)
		if next.GreaterThan(g.TargetAmount) {
			return fmt.Errorf("%w: at most %s can be added", ErrGoalOvershoot, g.Remaining())
		}
		if w.Balance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}

		now := uc.now()
		t := &models.Transaction{
			UserID:          s.UserID,
			FromWalletID:    &w.ID,
			TransactionType: models.TransactionGoalContribution,
			Amount:          req.Amount,
			CurrencyCode:    cur.Code,
			Status:          models.StatusCompleted,
			ReferenceNumber: ref,
			Description:     optString("Contribution to " + g.Title),
			Metadata:        models.NewMetadata(map[string]interface{}{"goal_id": g.ID.String()}),
			CreatedAt:       now,
			CompletedAt:     &now,
		}
		if err := repos.Transactions.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := debit(ctx, repos, w, req.Amount); err != nil {
			return err
		}
		if err := repos.Goals.UpdateCurrentAmount(ctx, g.ID, next); err != nil {
			return fmt.Errorf("update goal: %w", err)
		}
		g.CurrentAmount = next
		if err := recordActivity(ctx, repos, s.UserID, "goal_contribution", "savings_goal", g.ID, map[string]interface{}{
			"amount":         req.Amount.String(),
			"currency":       cur.Code,
			"transaction_id": t.ID.String(),
		}); err != nil {
			return err
		}
		tx, wallet, goal = t, w, g
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.TransactionCompleted(tx, wallet.Balance))

	res = newTransactionResult(tx, wallet)
	res.Goal = &models.GoalProgress{
		GoalID:          goal.ID,
		CurrentAmount:   goal.CurrentAmount,
		TargetAmount:    goal.TargetAmount,
		ProgressPercent: goal.ProgressPercent(),
	}
	return res, nil
}

// ContributeToVillageBank moves amount from a wallet into a village bank the
// caller is an active member of.
func (uc *savingsUsecase) ContributeToVillageBank(ctx context.Context, s models.Session, req models.VillageBankContributeRequest) (res *models.TransactionResult, err error) {
	const op = "village_bank_contribute"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	uc.logStart(op, s,
		logger.StringField("village_bank_id", req.VillageBankID.String()),
		logger.StringField("wallet_id", req.WalletID.String()),
		logger.StringField("amount", req.Amount.String()))

	if err := requireID(req.VillageBankID, "villageBankId"); err != nil {
		return nil, err
	}
	cur, err := validateSingle(req.WalletID, "walletId", req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	ref := uc.refs.Next(PrefixVillageBank)

	var tx *models.Transaction
	var wallet *models.Wallet
	var bank *models.VillageBank
	var member *models.VillageBankMember
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		w, err := lockOwnedWallet(ctx, repos, req.WalletID, s.UserID)
		if err != nil {
			return err
		}
		if err := matchCurrency(w, cur); err != nil {
			return err
		}
		b, err := repos.VillageBanks.GetByIDForUpdate(ctx, req.VillageBankID)
		if err != nil {
			return mapNotFound(err, ErrVillageBankNotFound)
		}
		m, err := repos.VillageBanks.GetMemberForUpdate(ctx, b.ID, s.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: not a member of this village bank", ErrPermissionDenied)
			}
			return fmt.Errorf("get member: %w", err)
		}
		if !m.IsActive {
			return fmt.Errorf("%w: membership is not active", ErrPermissionDenied)
		}
		if !b.IsActive {
			return validationf("village bank is not active")
		}
		if b.CurrencyCode != cur.Code {
			return fmt.Errorf("%w: village bank is in %s", ErrCurrencyMismatch, b.CurrencyCode)
		}
		if w.Balance.LessThan(req.Amount) {
			return ErrInsufficientFunds
		}

		now := uc.now()
		t := &models.Transaction{
			UserID:          s.UserID,
			FromWalletID:    &w.ID,
			TransactionType: models.TransactionVillageBankContribution,
			Amount:          req.Amount,
			CurrencyCode:    cur.Code,
			Status:          models.StatusCompleted,
			ReferenceNumber: ref,
			Description:     optString("Contribution to " + b.Name),
			Metadata:        models.NewMetadata(map[string]interface{}{"village_bank_id": b.ID.String()}),
			CreatedAt:       now,
			CompletedAt:     &now,
		}
		if err := repos.Transactions.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if err := debit(ctx, repos, w, req.Amount); err != nil {
			return err
		}
		bankTotal := b.CurrentAmount.Add(req.Amount)
		if err := repos.VillageBanks.UpdateCurrentAmount(ctx, b.ID, bankTotal); err != nil {
			return fmt.Errorf("update village bank: %w", err)
		}
		b.CurrentAmount = bankTotal
		memberTotal := m.TotalContributed.Add(req.Amount)
		if err := repos.VillageBanks.UpdateMemberTotal(ctx, m.ID, memberTotal); err != nil {
			return fmt.Errorf("update member total: %w", err)
		}
		m.TotalContributed = memberTotal
		if err := repos.VillageBanks.CreateContribution(ctx, &models.VillageBankContribution{
			VillageBankID: b.ID,
			UserID:        s.UserID,
			TransactionID: t.ID,
			Amount:        req.Amount,
			CreatedAt:     now,
		}); err != nil {
			return fmt.Errorf("create contribution: %w", err)
		}
		if err := recordActivity(ctx, repos, s.UserID, "village_bank_contribution", "village_bank", b.ID, map[string]interface{}{
			"amount":         req.Amount.String(),
			"currency":       cur.Code,
			"transaction_id": t.ID.String(),
		}); err != nil {
			return err
		}
		tx, wallet, bank, member = t, w, b, m
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.TransactionCompleted(tx, wallet.Balance))

	res = newTransactionResult(tx, wallet)
	res.VillageBank = &models.VillageBankProgress{
		VillageBankID:          bank.ID,
		CurrentAmount:          bank.CurrentAmount,
		TargetAmount:           bank.TargetAmount,
		MemberTotalContributed: member.TotalContributed,
	}
	return res, nil
}

// InviteToVillageBank records a pending invitation. Only the creator and
// active members may invite, and only while the bank has free seats.
func (uc *savingsUsecase) InviteToVillageBank(ctx context.Context, s models.Session, req models.VillageBankInviteRequest) (res *models.Invitation, err error) {
	const op = "village_bank_invite"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	if err := requireID(req.VillageBankID, "villageBankId"); err != nil {
		return nil, err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, validationf("email is invalid")
	}
	email := strings.ToLower(addr.Address)
	uc.logStart(op, s, logger.StringField("village_bank_id", req.VillageBankID.String()))

	var inv *models.Invitation
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := repos.VillageBanks.GetByIDForUpdate(ctx, req.VillageBankID)
		if err != nil {
			return mapNotFound(err, ErrVillageBankNotFound)
		}
		if b.CreatorID != s.UserID {
			m, err := repos.VillageBanks.GetMember(ctx, b.ID, s.UserID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("get member: %w", err)
			}
			if m == nil || !m.IsActive {
				return fmt.Errorf("%w: only members can invite", ErrPermissionDenied)
			}
		}
		if !b.IsActive {
			return validationf("village bank is not active")
		}
		if b.CurrentMembers >= b.MaxMembers {
			return validationf("village bank is full")
		}

		now := uc.now()
		i := &models.Invitation{
			VillageBankID: b.ID,
			InviterID:     s.UserID,
			InviteeEmail:  email,
			Status:        models.InvitationPending,
			Token:         uuid.NewString(),
			ExpiresAt:     now.Add(invitationTTL),
			CreatedAt:     now,
		}
		if err := repos.VillageBanks.CreateInvitation(ctx, i); err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}
		if err := recordActivity(ctx, repos, s.UserID, "village_bank_invite", "village_bank", b.ID, map[string]interface{}{
			"invitee_email": email,
		}); err != nil {
			return err
		}
		inv = i
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, events.Event{
		EventType:  events.TypeInvitationCreated,
		UserID:     s.UserID,
		ResourceID: inv.ID,
		Metadata:   map[string]interface{}{"village_bank_id": inv.VillageBankID.String()},
		Timestamp:  inv.CreatedAt,
	})
	return inv, nil
}
