package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/narimato/narimato/internal/storage/models"
)

// RankingRepository handles database operations for the global ELO
// leaderboard. Entries are upsert-only and replaced in bulk by the
// aggregator.
type RankingRepository interface {
	// ListByTenant retrieves all ranking entries of a tenant in
	// leaderboard order: rating desc, win rate desc, games desc,
	// last updated desc, card ID asc.
	ListByTenant(ctx context.Context, tenantID string) ([]*models.GlobalRanking, error)

	// Get retrieves a single entry.
	Get(ctx context.Context, tenantID, cardID string) (*models.GlobalRanking, error)

	// UpsertAll writes all entries in a single transaction. Either
	// every entry is written or none are.
	UpsertAll(ctx context.Context, entries []*models.GlobalRanking) error
}

type rankingRepository struct {
	db *sql.DB
}

// NewRankingRepository creates a new ranking repository.
func NewRankingRepository(db *sql.DB) RankingRepository {
	return &rankingRepository{db: db}
}

const rankingColumns = "tenant_id, card_id, elo_rating, wins, losses, total_games, win_rate, last_updated"

// ListByTenant retrieves all ranking entries of a tenant in
// leaderboard order.
func (r *rankingRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.GlobalRanking, error) {
	query := `
		SELECT ` + rankingColumns + `
		FROM global_rankings
		WHERE tenant_id = ?
		ORDER BY elo_rating DESC, win_rate DESC, total_games DESC, last_updated DESC, card_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.GlobalRanking
	for rows.Next() {
		entry, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Get retrieves a single entry.
func (r *rankingRepository) Get(ctx context.Context, tenantID, cardID string) (*models.GlobalRanking, error) {
	query := `SELECT ` + rankingColumns + ` FROM global_rankings WHERE tenant_id = ? AND card_id = ?`

	entry, err := scanRanking(r.db.QueryRowContext(ctx, query, tenantID, cardID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

// UpsertAll writes all entries in a single transaction.
func (r *rankingRepository) UpsertAll(ctx context.Context, entries []*models.GlobalRanking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO global_rankings (tenant_id, card_id, elo_rating, wins, losses, total_games, win_rate, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, card_id) DO UPDATE SET
			elo_rating = excluded.elo_rating,
			wins = excluded.wins,
			losses = excluded.losses,
			total_games = excluded.total_games,
			win_rate = excluded.win_rate,
			last_updated = excluded.last_updated
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, entry := range entries {
		_, err := stmt.ExecContext(ctx,
			entry.TenantID,
			entry.CardID,
			entry.ELORating,
			entry.Wins,
			entry.Losses,
			entry.TotalGames,
			entry.WinRate,
			entry.LastUpdated.UTC().Format(models.TimestampFormat),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanRanking(row rowScanner) (*models.GlobalRanking, error) {
	entry := &models.GlobalRanking{}
	var lastUpdated string

	err := row.Scan(
		&entry.TenantID,
		&entry.CardID,
		&entry.ELORating,
		&entry.Wins,
		&entry.Losses,
		&entry.TotalGames,
		&entry.WinRate,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}

	entry.LastUpdated, _ = time.Parse(models.TimestampFormat, lastUpdated)
	return entry, nil
}
