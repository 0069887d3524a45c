package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/usecase"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContributeToGoal_ReachesTargetButNotPast(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	w := f.wallet(alice, "MWK", "10000")
	g := f.store.PutGoal(models.SavingsGoal{
		UserID: alice.UserID, Title: "School fees", TargetAmount: dec("5000"),
		CurrentAmount: dec("3000"), CurrencyCode: "MWK", IsActive: true,
	})

	_, err := f.savings.ContributeToGoal(context.Background(), alice, models.GoalContributeRequest{
		GoalID: g.ID, WalletID: w.ID, Amount: dec("2000.01"), Currency: "MWK",
	})
	assert.ErrorIs(t, err, usecase.ErrGoalOvershoot)
	assertBalance(t, f, w.ID, "10000")
	assert.True(t, f.store.Goal(g.ID).CurrentAmount.Equal(dec("3000")))

	res, err := f.savings.ContributeToGoal(context.Background(), alice, models.GoalContributeRequest{
		GoalID: g.ID, WalletID: w.ID, Amount: dec("2000"), Currency: "MWK",
	})
	require.NoError(t, err)
	assertBalance(t, f, w.ID, "8000")
	require.NotNil(t, res.Goal)
	assert.True(t, res.Goal.CurrentAmount.Equal(dec("5000")))
	assert.True(t, res.Goal.ProgressPercent.Equal(dec("100")))
	assert.Equal(t, models.TransactionGoalContribution, res.Type)
	assert.Contains(t, res.ReferenceNumber, "GOL-")
	assert.True(t, f.store.Goal(g.ID).CurrentAmount.Equal(dec("5000")))
}

func TestContributeToGoal_Rejections(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	w := f.wallet(alice, "MWK", "100")
	own := f.store.PutGoal(models.SavingsGoal{UserID: alice.UserID, TargetAmount: dec("1000"), CurrencyCode: "MWK", IsActive: true})
	usdGoal := f.store.PutGoal(models.SavingsGoal{UserID: alice.UserID, TargetAmount: dec("1000"), CurrencyCode: "USD", IsActive: true})
	closed := f.store.PutGoal(models.SavingsGoal{UserID: alice.UserID, TargetAmount: dec("1000"), CurrencyCode: "MWK"})
	foreign := f.store.PutGoal(models.SavingsGoal{UserID: bob.UserID, TargetAmount: dec("1000"), CurrencyCode: "MWK", IsActive: true})

	tests := []struct {
		name   string
		goalID uuid.UUID
		amount string
		want   error
	}{
		{"missing goal", uuid.New(), "10", usecase.ErrGoalNotFound},
		{"foreign goal", foreign.ID, "10", usecase.ErrGoalNotFound},
		{"inactive goal", closed.ID, "10", usecase.ErrValidation},
		{"goal currency", usdGoal.ID, "10", usecase.ErrCurrencyMismatch},
		{"insufficient", own.ID, "100.5", usecase.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.savings.ContributeToGoal(context.Background(), alice, models.GoalContributeRequest{
				GoalID: tt.goalID, WalletID: w.ID, Amount: dec(tt.amount), Currency: "MWK",
			})
			assert.ErrorIs(t, err, tt.want)
			assertBalance(t, f, w.ID, "100")
		})
	}
	assert.Empty(t, f.store.Transactions())
}

func villageBankFixture(t *testing.T, f *fixture, creator models.Session) models.VillageBank {
	t.Helper()
	return f.store.PutVillageBank(models.VillageBank{
		Name: "Chilomoni savers", CreatorID: creator.UserID, CurrencyCode: "MWK",
		TargetAmount: dec("100000"), CurrentAmount: dec("20000"),
		MaxMembers: 3, CurrentMembers: 2, IsActive: true,
	})
}

func TestContributeToVillageBank(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bank := villageBankFixture(t, f, alice)
	member := f.store.PutMember(models.VillageBankMember{
		VillageBankID: bank.ID, UserID: alice.UserID, TotalContributed: dec("5000"), IsActive: true, JoinedAt: time.Now(),
	})
	w := f.wallet(alice, "MWK", "8000")

	res, err := f.savings.ContributeToVillageBank(context.Background(), alice, models.VillageBankContributeRequest{
		VillageBankID: bank.ID, WalletID: w.ID, Amount: dec("3000"), Currency: "MWK",
	})
	require.NoError(t, err)

	assertBalance(t, f, w.ID, "5000")
	assert.True(t, f.store.VillageBank(bank.ID).CurrentAmount.Equal(dec("23000")))
	assert.True(t, f.store.Member(member.ID).TotalContributed.Equal(dec("8000")))
	require.NotNil(t, res.VillageBank)
	assert.True(t, res.VillageBank.MemberTotalContributed.Equal(dec("8000")))
	assert.True(t, res.VillageBank.TargetAmount.Equal(dec("100000")))

	contributions := f.store.Contributions()
	require.Len(t, contributions, 1)
	assert.Equal(t, res.ID, contributions[0].TransactionID)
	assert.Contains(t, res.ReferenceNumber, "VBC-")
}

func TestContributeToVillageBank_RequiresActiveMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	bank := villageBankFixture(t, f, alice)
	f.store.PutMember(models.VillageBankMember{VillageBankID: bank.ID, UserID: bob.UserID})
	carol := f.user(t, "carol")
	bw := f.wallet(bob, "MWK", "1000")
	cw := f.wallet(carol, "MWK", "1000")

	_, err := f.savings.ContributeToVillageBank(context.Background(), bob, models.VillageBankContributeRequest{
		VillageBankID: bank.ID, WalletID: bw.ID, Amount: dec("100"), Currency: "MWK",
	})
	assert.ErrorIs(t, err, usecase.ErrPermissionDenied)

	_, err = f.savings.ContributeToVillageBank(context.Background(), carol, models.VillageBankContributeRequest{
		VillageBankID: bank.ID, WalletID: cw.ID, Amount: dec("100"), Currency: "MWK",
	})
	assert.ErrorIs(t, err, usecase.ErrPermissionDenied)

	_, err = f.savings.ContributeToVillageBank(context.Background(), carol, models.VillageBankContributeRequest{
		VillageBankID: uuid.New(), WalletID: cw.ID, Amount: dec("100"), Currency: "MWK",
	})
	assert.ErrorIs(t, err, usecase.ErrVillageBankNotFound)

	assertBalance(t, f, bw.ID, "1000")
	assertBalance(t, f, cw.ID, "1000")
	assert.Empty(t, f.store.Contributions())
}

func TestContributeToVillageBank_RollsBackWhenAuditInsertFails(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bank := villageBankFixture(t, f, alice)
	f.store.PutMember(models.VillageBankMember{VillageBankID: bank.ID, UserID: alice.UserID, IsActive: true})
	w := f.wallet(alice, "MWK", "1000")
	f.store.FailOn = func(op string) error {
		if op == "village_bank_contributions.create" {
			return assert.AnError
		}
		return nil
	}

	_, err := f.savings.ContributeToVillageBank(context.Background(), alice, models.VillageBankContributeRequest{
		VillageBankID: bank.ID, WalletID: w.ID, Amount: dec("100"), Currency: "MWK",
	})
	assert.ErrorIs(t, err, assert.AnError)
	assertBalance(t, f, w.ID, "1000")
	assert.True(t, f.store.VillageBank(bank.ID).CurrentAmount.Equal(dec("20000")))
	assert.Empty(t, f.store.Transactions())
}

func TestInviteToVillageBank(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	bank := villageBankFixture(t, f, alice)
	f.store.PutMember(models.VillageBankMember{VillageBankID: bank.ID, UserID: bob.UserID, IsActive: true})

	inv, err := f.savings.InviteToVillageBank(context.Background(), bob, models.VillageBankInviteRequest{
		VillageBankID: bank.ID, Email: " Dan@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "dan@example.com", inv.InviteeEmail)
	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), inv.ExpiresAt)
	assert.NotEmpty(t, inv.Token)
	assert.Len(t, f.store.Invitations(), 1)

	_, err = f.savings.InviteToVillageBank(context.Background(), carol, models.VillageBankInviteRequest{
		VillageBankID: bank.ID, Email: "erin@example.com",
	})
	assert.ErrorIs(t, err, usecase.ErrPermissionDenied)

	_, err = f.savings.InviteToVillageBank(context.Background(), alice, models.VillageBankInviteRequest{
		VillageBankID: bank.ID, Email: "not-an-email",
	})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	full := f.store.PutVillageBank(models.VillageBank{
		CreatorID: alice.UserID, CurrencyCode: "MWK", MaxMembers: 2, CurrentMembers: 2, IsActive: true,
	})
	_, err = f.savings.InviteToVillageBank(context.Background(), alice, models.VillageBankInviteRequest{
		VillageBankID: full.ID, Email: "erin@example.com",
	})
	assert.ErrorIs(t, err, usecase.ErrValidation)
	assert.Len(t, f.store.Invitations(), 1)
}
