package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/narimato/narimato/internal/storage/models"
)

// PlayRepository handles database operations for plays. All mutations
// after Create go through Update, which enforces optimistic
// concurrency on the play version.
type PlayRepository interface {
	// Create inserts a new play at version 0.
	Create(ctx context.Context, play *models.Play) error

	// Get retrieves a play by ID.
	Get(ctx context.Context, id string) (*models.Play, error)

	// Update commits a mutated play conditionally on expectedVersion.
	// On success the stored version (and play.Version) becomes
	// expectedVersion+1. Returns ErrVersionConflict if another writer
	// won the race.
	Update(ctx context.Context, play *models.Play, expectedVersion int64) error

	// ListCompleted retrieves up to limit completed plays of a tenant
	// that recorded at least one vote, most recently completed first.
	ListCompleted(ctx context.Context, tenantID string, limit int) ([]*models.Play, error)

	// ListStaleVoting retrieves plays stuck in the voting state with no
	// activity since the cutoff. Used by the optional vote-timeout sweep.
	ListStaleVoting(ctx context.Context, cutoff time.Time) ([]*models.Play, error)

	// DeleteExpired removes plays whose expiry deadline has passed and
	// returns the number deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type playRepository struct {
	db *sql.DB
}

// NewPlayRepository creates a new play repository.
func NewPlayRepository(db *sql.DB) PlayRepository {
	return &playRepository{db: db}
}

const playColumns = `id, tenant_id, session_id, deck_uuid, deck_tag, deck,
	status, state, version, created_at, last_activity, completed_at, expires_at,
	swipes, votes, personal_ranking, hierarchical_ranking, current_pair,
	hierarchical_phase, parent_play_id, hierarchical_state`

// Create inserts a new play at version 0.
func (r *playRepository) Create(ctx context.Context, play *models.Play) error {
	query := `
		INSERT INTO plays (` + playColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	enc, err := encodePlay(play)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		play.ID, play.TenantID, play.SessionID, play.DeckUUID, play.DeckTag, enc.deck,
		string(play.Status), string(play.State), play.Version,
		play.CreatedAt.Format(models.TimestampFormat),
		play.LastActivity.Format(models.TimestampFormat),
		enc.completedAt, play.ExpiresAt.Format(models.TimestampFormat),
		enc.swipes, enc.votes, enc.personalRanking, enc.hierarchicalRanking, enc.currentPair,
		string(play.HierarchicalPhase), nullString(play.ParentPlayID), enc.hierarchicalState,
	)
	return err
}

// Get retrieves a play by ID.
func (r *playRepository) Get(ctx context.Context, id string) (*models.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE id = ?`
	return scanPlay(r.db.QueryRowContext(ctx, query, id))
}

// Update commits a mutated play conditionally on expectedVersion.
func (r *playRepository) Update(ctx context.Context, play *models.Play, expectedVersion int64) error {
	query := `
		UPDATE plays
		SET status = ?, state = ?, version = ?, last_activity = ?, completed_at = ?,
		    swipes = ?, votes = ?, personal_ranking = ?, hierarchical_ranking = ?,
		    current_pair = ?, hierarchical_phase = ?, hierarchical_state = ?
		WHERE id = ? AND version = ?
	`

	play.Version = expectedVersion + 1
	play.LastActivity = time.Now().UTC()

	enc, err := encodePlay(play)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query,
		string(play.Status), string(play.State), play.Version,
		play.LastActivity.Format(models.TimestampFormat), enc.completedAt,
		enc.swipes, enc.votes, enc.personalRanking, enc.hierarchicalRanking,
		enc.currentPair, string(play.HierarchicalPhase), enc.hierarchicalState,
		play.ID, expectedVersion,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a lost race from a missing play.
		var count int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM plays WHERE id = ?`, play.ID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// ListCompleted retrieves up to limit completed plays of a tenant that
// recorded at least one vote, most recently completed first.
func (r *playRepository) ListCompleted(ctx context.Context, tenantID string, limit int) ([]*models.Play, error) {
	query := `
		SELECT ` + playColumns + `
		FROM plays
		WHERE tenant_id = ? AND status = ? AND json_array_length(votes) > 0
		ORDER BY completed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, string(models.PlayStatusCompleted), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanPlays(rows)
}

// ListStaleVoting retrieves plays stuck in the voting state with no
// activity since the cutoff.
func (r *playRepository) ListStaleVoting(ctx context.Context, cutoff time.Time) ([]*models.Play, error) {
	query := `
		SELECT ` + playColumns + `
		FROM plays
		WHERE state = ? AND status IN (?, ?) AND last_activity < ?
		ORDER BY last_activity ASC
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(models.PlayStateVoting),
		string(models.PlayStatusActive), string(models.PlayStatusWaitingForChildren),
		cutoff.UTC().Format(models.TimestampFormat),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanPlays(rows)
}

// DeleteExpired removes plays whose expiry deadline has passed.
func (r *playRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM plays WHERE expires_at <= ?`

	result, err := r.db.ExecContext(ctx, query, now.UTC().Format(models.TimestampFormat))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// encodedPlay holds the JSON-encoded columns of a play row.
type encodedPlay struct {
	deck                string
	swipes              string
	votes               string
	personalRanking     string
	hierarchicalRanking sql.NullString
	currentPair         sql.NullString
	hierarchicalState   sql.NullString
	completedAt         sql.NullString
}

func encodePlay(play *models.Play) (*encodedPlay, error) {
	enc := &encodedPlay{}

	var err error
	if enc.deck, err = marshalJSON(play.Deck); err != nil {
		return nil, fmt.Errorf("marshal deck: %w", err)
	}
	if enc.swipes, err = marshalJSON(play.Swipes); err != nil {
		return nil, fmt.Errorf("marshal swipes: %w", err)
	}
	if enc.votes, err = marshalJSON(play.Votes); err != nil {
		return nil, fmt.Errorf("marshal votes: %w", err)
	}
	if enc.personalRanking, err = marshalJSON(play.PersonalRanking); err != nil {
		return nil, fmt.Errorf("marshal personal ranking: %w", err)
	}

	if play.HierarchicalRanking != nil {
		s, err := marshalJSON(play.HierarchicalRanking)
		if err != nil {
			return nil, fmt.Errorf("marshal hierarchical ranking: %w", err)
		}
		enc.hierarchicalRanking = sql.NullString{String: s, Valid: true}
	}
	if play.CurrentPair != nil {
		data, err := json.Marshal(play.CurrentPair)
		if err != nil {
			return nil, fmt.Errorf("marshal current pair: %w", err)
		}
		enc.currentPair = sql.NullString{String: string(data), Valid: true}
	}
	if play.HierarchicalState != nil {
		data, err := json.Marshal(play.HierarchicalState)
		if err != nil {
			return nil, fmt.Errorf("marshal hierarchical state: %w", err)
		}
		enc.hierarchicalState = sql.NullString{String: string(data), Valid: true}
	}
	if play.CompletedAt != nil {
		enc.completedAt = sql.NullString{String: play.CompletedAt.UTC().Format(models.TimestampFormat), Valid: true}
	}

	return enc, nil
}

// marshalJSON encodes a slice, mapping nil to the empty JSON array so
// append-only columns never store SQL NULL.
func marshalJSON[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func scanPlay(row rowScanner) (*models.Play, error) {
	play := &models.Play{}
	var deck, swipes, votes, personalRanking string
	var hierarchicalRanking, currentPair, hierarchicalState sql.NullString
	var status, state, phase string
	var createdAt, lastActivity, expiresAt string
	var completedAt, parentPlayID sql.NullString

	err := row.Scan(
		&play.ID, &play.TenantID, &play.SessionID, &play.DeckUUID, &play.DeckTag, &deck,
		&status, &state, &play.Version, &createdAt, &lastActivity, &completedAt, &expiresAt,
		&swipes, &votes, &personalRanking, &hierarchicalRanking, &currentPair,
		&phase, &parentPlayID, &hierarchicalState,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	play.Status = models.PlayStatus(status)
	play.State = models.PlayState(state)
	play.HierarchicalPhase = models.HierarchicalPhase(phase)
	play.ParentPlayID = parentPlayID.String

	if err := json.Unmarshal([]byte(deck), &play.Deck); err != nil {
		return nil, fmt.Errorf("unmarshal deck: %w", err)
	}
	if err := json.Unmarshal([]byte(swipes), &play.Swipes); err != nil {
		return nil, fmt.Errorf("unmarshal swipes: %w", err)
	}
	if err := json.Unmarshal([]byte(votes), &play.Votes); err != nil {
		return nil, fmt.Errorf("unmarshal votes: %w", err)
	}
	if err := json.Unmarshal([]byte(personalRanking), &play.PersonalRanking); err != nil {
		return nil, fmt.Errorf("unmarshal personal ranking: %w", err)
	}
	if hierarchicalRanking.Valid {
		if err := json.Unmarshal([]byte(hierarchicalRanking.String), &play.HierarchicalRanking); err != nil {
			return nil, fmt.Errorf("unmarshal hierarchical ranking: %w", err)
		}
	}
	if currentPair.Valid {
		pair := &models.CardPair{}
		if err := json.Unmarshal([]byte(currentPair.String), pair); err != nil {
			return nil, fmt.Errorf("unmarshal current pair: %w", err)
		}
		play.CurrentPair = pair
	}
	if hierarchicalState.Valid {
		hs := &models.HierarchicalState{}
		if err := json.Unmarshal([]byte(hierarchicalState.String), hs); err != nil {
			return nil, fmt.Errorf("unmarshal hierarchical state: %w", err)
		}
		play.HierarchicalState = hs
	}

	play.CreatedAt, _ = time.Parse(models.TimestampFormat, createdAt)
	play.LastActivity, _ = time.Parse(models.TimestampFormat, lastActivity)
	play.ExpiresAt, _ = time.Parse(models.TimestampFormat, expiresAt)
	if completedAt.Valid {
		t, _ := time.Parse(models.TimestampFormat, completedAt.String)
		play.CompletedAt = &t
	}

	return play, nil
}

func scanPlays(rows *sql.Rows) ([]*models.Play, error) {
	var plays []*models.Play

	for rows.Next() {
		play, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, play)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plays, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
