package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CardType string

const (
	CardVirtual  CardType = "virtual"
	CardPhysical CardType = "physical"
)

type CardStatus string

const (
	CardActive   CardStatus = "active"
	CardInactive CardStatus = "inactive"
	CardBlocked  CardStatus = "blocked"
	CardExpired  CardStatus = "expired"
)

type Card struct {
	ID             uuid.UUID           `json:"id" db:"id"`
	UserID         uuid.UUID           `json:"user_id" db:"user_id"`
	WalletID       uuid.UUID           `json:"wallet_id" db:"wallet_id"`
	CardType       CardType            `json:"card_type" db:"card_type"`
	MaskedNumber   string              `json:"masked_number" db:"masked_number"`
	ExpiryMonth    int                 `json:"expiry_month" db:"expiry_month"`
	ExpiryYear     int                 `json:"expiry_year" db:"expiry_year"`
	CardholderName string              `json:"cardholder_name" db:"cardholder_name"`
	Status         CardStatus          `json:"status" db:"status"`
	SpendingLimit  decimal.NullDecimal `json:"spending_limit" db:"spending_limit"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
}
