package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GoalProgress struct {
	GoalID          uuid.UUID       `json:"goal_id"`
	CurrentAmount   decimal.Decimal `json:"current_amount"`
	TargetAmount    decimal.Decimal `json:"target_amount"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
}

type VillageBankProgress struct {
	VillageBankID          uuid.UUID       `json:"village_bank_id"`
	CurrentAmount          decimal.Decimal `json:"current_amount"`
	TargetAmount           decimal.Decimal `json:"target_amount"`
	MemberTotalContributed decimal.Decimal `json:"member_total_contributed"`
}

// TransactionResult is the "transaction" object returned by every money-movement endpoint.
type TransactionResult struct {
	ID              uuid.UUID            `json:"id"`
	ReferenceNumber string               `json:"reference_number"`
	Type            TransactionType      `json:"type"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	Fee             decimal.Decimal      `json:"fee"`
	Status          TransactionStatus    `json:"status"`
	Timestamp       time.Time            `json:"timestamp"`
	WalletID        uuid.UUID            `json:"wallet_id"`
	NewBalance      decimal.Decimal      `json:"new_balance"`
	RecipientUserID *uuid.UUID           `json:"recipient_user_id,omitempty"`
	ToWalletID      *uuid.UUID           `json:"to_wallet_id,omitempty"`
	ConvertedAmount *decimal.Decimal     `json:"converted_amount,omitempty"`
	ToCurrency      string               `json:"to_currency,omitempty"`
	ExchangeRate    *decimal.Decimal     `json:"exchange_rate,omitempty"`
	Goal            *GoalProgress        `json:"goal,omitempty"`
	VillageBank     *VillageBankProgress `json:"village_bank,omitempty"`
}

// UserSnapshot is the composite returned by get-user-data.
type UserSnapshot struct {
	Profile      *Profile                `json:"profile"`
	Wallets      []Wallet                `json:"wallets"`
	Transactions []Transaction           `json:"transactions"`
	Cards        []Card                  `json:"cards"`
	Goals        []SavingsGoal           `json:"savings_goals"`
	VillageBanks []VillageBankMembership `json:"village_banks"`
}
