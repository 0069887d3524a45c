package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletType string

const (
	WalletTypeFiat   WalletType = "fiat"
	WalletTypeCrypto WalletType = "crypto"
)

// Wallet holds one (user, currency) balance.
type Wallet struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       uuid.UUID       `json:"user_id" db:"user_id"`
	CurrencyCode string          `json:"currency_code" db:"currency_code"`
	WalletType   WalletType      `json:"wallet_type" db:"wallet_type"`
	Balance      decimal.Decimal `json:"balance" db:"balance"`
	IsPrimary    bool            `json:"is_primary" db:"is_primary"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (w *Wallet) OwnedBy(userID uuid.UUID) bool {
	return w != nil && w.UserID == userID
}
