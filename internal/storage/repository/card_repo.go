package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/narimato/narimato/internal/storage/models"
)

// CardRepository handles database operations for cards.
type CardRepository interface {
	// Create inserts a new card.
	Create(ctx context.Context, card *models.Card) error

	// Update replaces the mutable fields of an existing card.
	Update(ctx context.Context, card *models.Card) error

	// Get retrieves a card by ID.
	Get(ctx context.Context, id string) (*models.Card, error)

	// GetByName retrieves a card by its hashtag-form name within a tenant.
	GetByName(ctx context.Context, tenantID, name string) (*models.Card, error)

	// ListActiveByHashtag retrieves active cards of a tenant whose
	// hashtag set contains the given tag.
	ListActiveByHashtag(ctx context.Context, tenantID, tag string) ([]*models.Card, error)

	// List retrieves all cards of a tenant, active and inactive.
	List(ctx context.Context, tenantID string) ([]*models.Card, error)

	// Exists reports whether a card with the given ID exists for the tenant.
	Exists(ctx context.Context, tenantID, id string) (bool, error)

	// SoftDelete marks a card inactive.
	SoftDelete(ctx context.Context, id string) error
}

type cardRepository struct {
	db *sql.DB
}

// NewCardRepository creates a new card repository.
func NewCardRepository(db *sql.DB) CardRepository {
	return &cardRepository{db: db}
}

const cardColumns = "id, tenant_id, name, body, hashtags, is_active, created_at, updated_at"

// Create inserts a new card.
func (r *cardRepository) Create(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO cards (id, tenant_id, name, body, hashtags, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now

	hashtags, err := json.Marshal(card.Hashtags)
	if err != nil {
		return fmt.Errorf("marshal hashtags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		card.ID,
		card.TenantID,
		card.Name,
		card.Body,
		string(hashtags),
		boolToInt(card.IsActive),
		now.Format(models.TimestampFormat),
		now.Format(models.TimestampFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateName
		}
		return err
	}
	return nil
}

// Update replaces the mutable fields of an existing card.
func (r *cardRepository) Update(ctx context.Context, card *models.Card) error {
	query := `
		UPDATE cards
		SET name = ?, body = ?, hashtags = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	card.UpdatedAt = time.Now().UTC()

	hashtags, err := json.Marshal(card.Hashtags)
	if err != nil {
		return fmt.Errorf("marshal hashtags: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query,
		card.Name,
		card.Body,
		string(hashtags),
		boolToInt(card.IsActive),
		card.UpdatedAt.Format(models.TimestampFormat),
		card.ID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateName
		}
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a card by ID.
func (r *cardRepository) Get(ctx context.Context, id string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = ?`
	return r.scanCard(r.db.QueryRowContext(ctx, query, id))
}

// GetByName retrieves a card by its hashtag-form name within a tenant.
func (r *cardRepository) GetByName(ctx context.Context, tenantID, name string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE tenant_id = ? AND name = ?`
	return r.scanCard(r.db.QueryRowContext(ctx, query, tenantID, name))
}

// ListActiveByHashtag retrieves active cards of a tenant whose hashtag
// set contains the given tag. Uses json_each over the hashtags column.
func (r *cardRepository) ListActiveByHashtag(ctx context.Context, tenantID, tag string) ([]*models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE tenant_id = ? AND is_active = 1
		  AND EXISTS (SELECT 1 FROM json_each(cards.hashtags) WHERE json_each.value = ?)
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, tag)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return r.scanCards(rows)
}

// List retrieves all cards of a tenant, active and inactive.
func (r *cardRepository) List(ctx context.Context, tenantID string) ([]*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE tenant_id = ? ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return r.scanCards(rows)
}

// Exists reports whether a card with the given ID exists for the tenant.
func (r *cardRepository) Exists(ctx context.Context, tenantID, id string) (bool, error) {
	query := `SELECT COUNT(1) FROM cards WHERE tenant_id = ? AND id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, tenantID, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SoftDelete marks a card inactive.
func (r *cardRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE cards SET is_active = 0, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(models.TimestampFormat), id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *cardRepository) scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	var hashtags string
	var isActive int
	var createdAt, updatedAt string

	err := row.Scan(
		&card.ID,
		&card.TenantID,
		&card.Name,
		&card.Body,
		&hashtags,
		&isActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(hashtags), &card.Hashtags); err != nil {
		return nil, fmt.Errorf("unmarshal hashtags: %w", err)
	}
	card.IsActive = isActive != 0
	card.CreatedAt, _ = time.Parse(models.TimestampFormat, createdAt)
	card.UpdatedAt, _ = time.Parse(models.TimestampFormat, updatedAt)

	return card, nil
}

func (r *cardRepository) scanCards(rows *sql.Rows) ([]*models.Card, error) {
	var cards []*models.Card

	for rows.Next() {
		card, err := r.scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
