package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request bodies for the money-movement endpoints. Amounts accept JSON numbers
// or strings.

type DepositRequest struct {
	WalletID      uuid.UUID       `json:"walletId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
	Description   string          `json:"description,omitempty"`
}

type WithdrawRequest struct {
	WalletID         uuid.UUID              `json:"walletId"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	WithdrawalMethod string                 `json:"withdrawalMethod"`
	AccountDetails   map[string]interface{} `json:"accountDetails"`
	Description      string                 `json:"description,omitempty"`
}

type SendRequest struct {
	FromWalletID uuid.UUID       `json:"fromWalletId"`
	ToUserID     uuid.UUID       `json:"toUserId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description,omitempty"`
}

type ExchangeRequest struct {
	FromWalletID uuid.UUID       `json:"fromWalletId"`
	ToWalletID   uuid.UUID       `json:"toWalletId"`
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

type GoalContributeRequest struct {
	GoalID   uuid.UUID       `json:"goalId"`
	WalletID uuid.UUID       `json:"walletId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type VillageBankContributeRequest struct {
	VillageBankID uuid.UUID       `json:"villageBankId"`
	WalletID      uuid.UUID       `json:"walletId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

type VillageBankInviteRequest struct {
	VillageBankID uuid.UUID `json:"villageBankId"`
	Email         string    `json:"email"`
}

type CardCreateRequest struct {
	WalletID      uuid.UUID           `json:"walletId"`
	CardType      CardType            `json:"cardType"`
	SpendingLimit decimal.NullDecimal `json:"spendingLimit"`
}

type WalletCreateRequest struct {
	Currency   string     `json:"currency"`
	WalletType WalletType `json:"walletType,omitempty"`
}
