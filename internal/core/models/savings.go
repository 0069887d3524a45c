package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SavingsGoal struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	Title         string          `json:"title" db:"title"`
	TargetAmount  decimal.Decimal `json:"target_amount" db:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount" db:"current_amount"`
	CurrencyCode  string          `json:"currency_code" db:"currency_code"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Remaining is never negative.
func (g *SavingsGoal) Remaining() decimal.Decimal {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

func (g *SavingsGoal) ProgressPercent() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)).Round(2)
}

type VillageBank struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	CreatorID      uuid.UUID       `json:"creator_id" db:"creator_id"`
	CurrencyCode   string          `json:"currency_code" db:"currency_code"`
	TargetAmount   decimal.Decimal `json:"target_amount" db:"target_amount"`
	CurrentAmount  decimal.Decimal `json:"current_amount" db:"current_amount"`
	MaxMembers     int             `json:"max_members" db:"max_members"`
	CurrentMembers int             `json:"current_members" db:"current_members"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

type VillageBankMember struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	VillageBankID    uuid.UUID       `json:"village_bank_id" db:"village_bank_id"`
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	TotalContributed decimal.Decimal `json:"total_contributed" db:"total_contributed"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	JoinedAt         time.Time       `json:"joined_at" db:"joined_at"`
}

type VillageBankContribution struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	VillageBankID uuid.UUID       `json:"village_bank_id" db:"village_bank_id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// VillageBankMembership is a member row joined with its bank.
type VillageBankMembership struct {
	Member VillageBankMember `json:"membership"`
	Bank   VillageBank       `json:"village_bank"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	VillageBankID uuid.UUID        `json:"village_bank_id" db:"village_bank_id"`
	InviterID     uuid.UUID        `json:"inviter_id" db:"inviter_id"`
	InviteeEmail  string           `json:"invitee_email" db:"invitee_email"`
	Status        InvitationStatus `json:"status" db:"status"`
	Token         string           `json:"-" db:"token"`
	ExpiresAt     time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}
