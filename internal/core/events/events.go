// Package events carries committed ledger changes to subscribers outside the
// request: the realtime websocket relay (Redis pub/sub) and the activity
// stream (Kafka).
package events

import (
	"context"
	"errors"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeTransactionCompleted = "transaction.completed"
	TypeCardCreated          = "card.created"
	TypeWalletCreated        = "wallet.created"
	TypeInvitationCreated    = "village_bank.invitation_created"
)

type Event struct {
	EventType       string                 `json:"event_type"`
	UserID          uuid.UUID              `json:"user_id"`
	ResourceID      uuid.UUID              `json:"resource_id"`
	ReferenceNumber string                 `json:"reference_number,omitempty"`
	TransactionType models.TransactionType `json:"transaction_type,omitempty"`
	Status          string                 `json:"status,omitempty"`
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency,omitempty"`
	Fee             decimal.Decimal        `json:"fee"`
	BalanceAfter    *decimal.Decimal       `json:"balance_after,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// TransactionCompleted describes tx as seen by its owner, with the owner's
// wallet balance after the change.
func TransactionCompleted(tx *models.Transaction, balanceAfter decimal.Decimal) Event {
	e := Event{
		EventType:       TypeTransactionCompleted,
		UserID:          tx.UserID,
		ResourceID:      tx.ID,
		ReferenceNumber: tx.ReferenceNumber,
		TransactionType: tx.TransactionType,
		Status:          string(tx.Status),
		Amount:          tx.Amount,
		Currency:        tx.CurrencyCode,
		BalanceAfter:    &balanceAfter,
		Timestamp:       tx.CreatedAt,
	}
	if tx.Fee.Valid {
		e.Fee = tx.Fee.Decimal
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Subscriber streams the events of one user until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, error)
}

type nopPublisher struct{}

func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }

// Multi fans out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
