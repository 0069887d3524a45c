package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionSend                    TransactionType = "send"
	TransactionReceive                 TransactionType = "receive"
	TransactionDeposit                 TransactionType = "deposit"
	TransactionWithdraw                TransactionType = "withdraw"
	TransactionExchange                TransactionType = "exchange"
	TransactionGoalContribution        TransactionType = "goal_contribution"
	TransactionVillageBankContribution TransactionType = "village_bank_contribution"
	TransactionCardPurchase            TransactionType = "card_purchase"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// CanTransition reports whether s may move to next. Only pending is non-terminal.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Transaction struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	UserID          uuid.UUID           `json:"user_id" db:"user_id"`
	FromWalletID    *uuid.UUID          `json:"from_wallet_id,omitempty" db:"from_wallet_id"`
	ToWalletID      *uuid.UUID          `json:"to_wallet_id,omitempty" db:"to_wallet_id"`
	RecipientUserID *uuid.UUID          `json:"recipient_user_id,omitempty" db:"recipient_user_id"`
	TransactionType TransactionType     `json:"transaction_type" db:"transaction_type"`
	Amount          decimal.Decimal     `json:"amount" db:"amount"`
	CurrencyCode    string              `json:"currency_code" db:"currency_code"`
	Status          TransactionStatus   `json:"status" db:"status"`
	ReferenceNumber string              `json:"reference_number" db:"reference_number"`
	ExchangeRate    decimal.NullDecimal `json:"exchange_rate" db:"exchange_rate"`
	Fee             decimal.NullDecimal `json:"fee" db:"fee"`
	Description     *string             `json:"description,omitempty" db:"description"`
	Metadata        types.JSONText      `json:"metadata" db:"metadata"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
}
