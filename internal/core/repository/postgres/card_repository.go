package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Nzyazin/walletd/internal/core/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const cardColumns = `id, user_id, wallet_id, card_type, masked_number, expiry_month, expiry_year,
	cardholder_name, status, spending_limit, created_at`

type postgresCardRepo struct {
	db sqlx.ExtContext
}

func (r *postgresCardRepo) Create(ctx context.Context, card *models.Card) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO cards
		(id, user_id, wallet_id, card_type, masked_number, expiry_month, expiry_year,
		 cardholder_name, status, spending_limit, created_at)
		VALUES (:id, :user_id, :wallet_id, :card_type, :masked_number, :expiry_month, :expiry_year,
		 :cardholder_name, :status, :spending_limit, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, card); err != nil {
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

func (r *postgresCardRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Card, error) {
	cards := []models.Card{}
	query := `SELECT ` + cardColumns + ` FROM cards WHERE user_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.db, &cards, query, userID); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

type postgresProfileRepo struct {
	db sqlx.ExtContext
}

func (r *postgresProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	query := `SELECT user_id, full_name, email, phone, avatar_url, created_at FROM profiles WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, r.db, &profile, query, userID); err != nil {
		return nil, notFound(err, "profile")
	}
	return &profile, nil
}

type postgresActivityRepo struct {
	db sqlx.ExtContext
}

func (r *postgresActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = models.NewMetadata(nil)
	}

	const query = `INSERT INTO activity_logs
		(id, user_id, action, resource_type, resource_id, metadata, created_at)
		VALUES (:id, :user_id, :action, :resource_type, :resource_id, :metadata, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}
