package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/Nzyazin/walletd/internal/core/events"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/Nzyazin/walletd/internal/core/repository"
)

const cardValidityYears = 4

type CardUsecase interface {
	CreateCard(ctx context.Context, s models.Session, req models.CardCreateRequest) (*models.Card, error)
}

type cardUsecase struct {
	ledger
}

func NewCardUsecase(d Deps) CardUsecase {
	return &cardUsecase{ledger: newLedger(d)}
}

// CreateCard issues a card on one of the caller's wallets. When a price is
// configured for the card type it is debited in the same transaction.
func (uc *cardUsecase) CreateCard(ctx context.Context, s models.Session, req models.CardCreateRequest) (card *models.Card, err error) {
	const op = "card_create"
	defer func() { err = uc.finish(op, s, err) }()

	if err := requireSession(s); err != nil {
		return nil, err
	}
	if err := requireID(req.WalletID, "walletId"); err != nil {
		return nil, err
	}
	status, err := initialCardStatus(req.CardType)
	if err != nil {
		return nil, err
	}
	if req.SpendingLimit.Valid && !req.SpendingLimit.Decimal.IsPositive() {
		return nil, validationf("spendingLimit must be positive")
	}
	uc.logStart(op, s,
		logger.StringField("wallet_id", req.WalletID.String()),
		logger.StringField("card_type", string(req.CardType)))

	price := uc.pricing.CardPrice(req.CardType)
	masked, err := maskedCardNumber()
	if err != nil {
		return nil, fmt.Errorf("generate card number: %w", err)
	}

	var purchase *models.Transaction
	var wallet *models.Wallet
	err = uc.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		w, err := lockOwnedWallet(ctx, repos, req.WalletID, s.UserID)
		if err != nil {
			return err
		}
		holder, err := cardholderName(ctx, repos, s)
		if err != nil {
			return err
		}

		now := uc.now()
		if price.IsPositive() {
			if w.Balance.LessThan(price) {
				return ErrInsufficientFunds
			}
			t := &models.Transaction{
				UserID:          s.UserID,
				FromWalletID:    &w.ID,
				TransactionType: models.TransactionCardPurchase,
				Amount:          price,
				CurrencyCode:    w.CurrencyCode,
				Status:          models.StatusCompleted,
				ReferenceNumber: uc.refs.Next(PrefixCardPurchase),
				Description:     optString(fmt.Sprintf("%s card", req.CardType)),
				Metadata:        models.NewMetadata(map[string]interface{}{"card_type": string(req.CardType)}),
				CreatedAt:       now,
				CompletedAt:     &now,
			}
			if err := repos.Transactions.Create(ctx, t); err != nil {
				return fmt.Errorf("create transaction: %w", err)
			}
			if err := debit(ctx, repos, w, price); err != nil {
				return err
			}
			purchase = t
		}

		c := &models.Card{
			UserID:         s.UserID,
			WalletID:       w.ID,
			CardType:       req.CardType,
			MaskedNumber:   masked,
			ExpiryMonth:    int(now.Month()),
			ExpiryYear:     now.Year() + cardValidityYears,
			CardholderName: holder,
			Status:         status,
			SpendingLimit:  req.SpendingLimit,
			CreatedAt:      now,
		}
		if err := repos.Cards.Create(ctx, c); err != nil {
			return fmt.Errorf("create card: %w", err)
		}
		if err := recordActivity(ctx, repos, s.UserID, "card_created", "card", c.ID, map[string]interface{}{
			"card_type": string(req.CardType),
			"wallet_id": w.ID.String(),
		}); err != nil {
			return err
		}
		card, wallet = c, w
		return nil
	})
	if err != nil {
		return nil, err
	}

	evts := []events.Event{{
		EventType:  events.TypeCardCreated,
		UserID:     s.UserID,
		ResourceID: card.ID,
		Metadata:   map[string]interface{}{"card_type": string(card.CardType)},
		Timestamp:  card.CreatedAt,
	}}
	if purchase != nil {
		evts = append(evts, events.TransactionCompleted(purchase, wallet.Balance))
	}
	uc.publish(ctx, evts...)
	return card, nil
}

func initialCardStatus(t models.CardType) (models.CardStatus, error) {
	switch t {
	case models.CardVirtual:
		return models.CardActive, nil
	case models.CardPhysical:
		// physical cards are activated on delivery
		return models.CardInactive, nil
	case "":
		return "", validationf("cardType is required")
	}
	return "", validationf("cardType must be virtual or physical")
}

func cardholderName(ctx context.Context, repos repository.Repositories, s models.Session) (string, error) {
	p, err := repos.Profiles.GetByUserID(ctx, s.UserID)
	switch {
	case err == nil && p.FullName != "":
		return p.FullName, nil
	case err == nil:
		if p.Email != "" {
			return p.Email, nil
		}
	case !errors.Is(err, repository.ErrNotFound):
		return "", fmt.Errorf("get profile: %w", err)
	}
	if s.Email == "" {
		return "", validationf("a profile name or email is required to issue a card")
	}
	return s.Email, nil
}

func maskedCardNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**** **** **** %04d", n.Int64()), nil
}
