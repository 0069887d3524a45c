package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	goalColumns   = `id, user_id, title, target_amount, current_amount, currency_code, is_active, created_at`
	bankColumns   = `id, name, creator_id, currency_code, target_amount, current_amount, max_members, current_members, is_active, created_at`
	memberColumns = `id, village_bank_id, user_id, total_contributed, is_active, joined_at`
)

type postgresGoalRepo struct {
	db sqlx.ExtContext
}

func (r *postgresGoalRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SavingsGoal, error) {
	var goal models.SavingsGoal
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.db, &goal, query, id); err != nil {
		return nil, notFound(err, "savings goal")
	}
	return &goal, nil
}

func (r *postgresGoalRepo) UpdateCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE savings_goals SET current_amount = $1 WHERE id = $2`, amount, id)
	if err != nil {
		return fmt.Errorf("update savings goal: %w", err)
	}
	return expectOneRow(res, "savings goal")
}

func (r *postgresGoalRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SavingsGoal, error) {
	goals := []models.SavingsGoal{}
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE user_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.db, &goals, query, userID); err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	return goals, nil
}

type postgresVillageBankRepo struct {
	db sqlx.ExtContext
}

func (r *postgresVillageBankRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.VillageBank, error) {
	var bank models.VillageBank
	query := `SELECT ` + bankColumns + ` FROM village_banks WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.db, &bank, query, id); err != nil {
		return nil, notFound(err, "village bank")
	}
	return &bank, nil
}

func (r *postgresVillageBankRepo) GetMember(ctx context.Context, bankID, userID uuid.UUID) (*models.VillageBankMember, error) {
	return r.getMember(ctx, `SELECT `+memberColumns+` FROM village_bank_members
		WHERE village_bank_id = $1 AND user_id = $2`, bankID, userID)
}

func (r *postgresVillageBankRepo) GetMemberForUpdate(ctx context.Context, bankID, userID uuid.UUID) (*models.VillageBankMember, error) {
	return r.getMember(ctx, `SELECT `+memberColumns+` FROM village_bank_members
		WHERE village_bank_id = $1 AND user_id = $2 FOR UPDATE`, bankID, userID)
}

func (r *postgresVillageBankRepo) getMember(ctx context.Context, query string, bankID, userID uuid.UUID) (*models.VillageBankMember, error) {
	var member models.VillageBankMember
	if err := sqlx.GetContext(ctx, r.db, &member, query, bankID, userID); err != nil {
		return nil, notFound(err, "village bank member")
	}
	return &member, nil
}

func (r *postgresVillageBankRepo) UpdateCurrentAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE village_banks SET current_amount = $1 WHERE id = $2`, amount, id)
	if err != nil {
		return fmt.Errorf("update village bank: %w", err)
	}
	return expectOneRow(res, "village bank")
}

func (r *postgresVillageBankRepo) UpdateMemberTotal(ctx context.Context, memberID uuid.UUID, total decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx, `UPDATE village_bank_members SET total_contributed = $1 WHERE id = $2`, total, memberID)
	if err != nil {
		return fmt.Errorf("update village bank member: %w", err)
	}
	return expectOneRow(res, "village bank member")
}

func (r *postgresVillageBankRepo) CreateContribution(ctx context.Context, c *models.VillageBankContribution) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO village_bank_contributions
		(id, village_bank_id, user_id, transaction_id, amount, created_at)
		VALUES (:id, :village_bank_id, :user_id, :transaction_id, :amount, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, c); err != nil {
		return fmt.Errorf("create village bank contribution: %w", err)
	}
	return nil
}

func (r *postgresVillageBankRepo) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO invitations
		(id, village_bank_id, inviter_id, invitee_email, status, token, expires_at, created_at)
		VALUES (:id, :village_bank_id, :inviter_id, :invitee_email, :status, :token, :expires_at, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

type membershipRow struct {
	MemberID         uuid.UUID       `db:"member_id"`
	TotalContributed decimal.Decimal `db:"total_contributed"`
	MemberActive     bool            `db:"member_active"`
	JoinedAt         time.Time       `db:"joined_at"`
	models.VillageBank
}

func (r *postgresVillageBankRepo) ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]models.VillageBankMembership, error) {
	const query = `SELECT m.id AS member_id, m.total_contributed, m.is_active AS member_active, m.joined_at,
			b.id, b.name, b.creator_id, b.currency_code, b.target_amount, b.current_amount,
			b.max_members, b.current_members, b.is_active, b.created_at
		FROM village_bank_members m
		JOIN village_banks b ON b.id = m.village_bank_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at DESC`

	var rows []membershipRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list village bank memberships: %w", err)
	}

	out := make([]models.VillageBankMembership, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.VillageBankMembership{
			Member: models.VillageBankMember{
				ID:               row.MemberID,
				VillageBankID:    row.VillageBank.ID,
				UserID:           userID,
				TotalContributed: row.TotalContributed,
				IsActive:         row.MemberActive,
				JoinedAt:         row.JoinedAt,
			},
			Bank: row.VillageBank,
		})
	}
	return out, nil
}
