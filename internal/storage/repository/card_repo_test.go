package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/narimato/narimato/internal/storage/models"
)

func setupCardTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE cards (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			hashtags TEXT NOT NULL DEFAULT '[]',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (tenant_id, name)
		);
	`)
	require.NoError(t, err)

	return db
}

func testCard(id, name string, hashtags ...string) *models.Card {
	return &models.Card{
		ID:       id,
		TenantID: "t1",
		Name:     name,
		Body:     "body of " + name,
		Hashtags: hashtags,
		IsActive: true,
	}
}

func TestCardRepository_CreateAndGet(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	card := testCard("card-1", "#apple", "#fruit", "#food")
	require.NoError(t, repo.Create(ctx, card))
	assert.False(t, card.CreatedAt.IsZero())

	got, err := repo.Get(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, "#apple", got.Name)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, []string{"#fruit", "#food"}, got.Hashtags)
	assert.True(t, got.IsActive)
}

func TestCardRepository_GetNotFound(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCardRepository_GetByName(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCard("card-1", "#apple", "#fruit")))

	got, err := repo.GetByName(ctx, "t1", "#apple")
	require.NoError(t, err)
	assert.Equal(t, "card-1", got.ID)

	_, err = repo.GetByName(ctx, "t2", "#apple")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCardRepository_DuplicateName(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCard("card-1", "#apple")))

	err := repo.Create(ctx, testCard("card-2", "#apple"))
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Same name under another tenant is fine.
	other := testCard("card-3", "#apple")
	other.TenantID = "t2"
	assert.NoError(t, repo.Create(ctx, other))
}

func TestCardRepository_ListActiveByHashtag(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCard("card-b", "#banana", "#fruit")))
	require.NoError(t, repo.Create(ctx, testCard("card-a", "#apple", "#fruit", "#red")))
	require.NoError(t, repo.Create(ctx, testCard("card-w", "#water", "#drink")))

	inactive := testCard("card-m", "#mango", "#fruit")
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, inactive))

	cards, err := repo.ListActiveByHashtag(ctx, "t1", "#fruit")
	require.NoError(t, err)
	require.Len(t, cards, 2)

	// Name order.
	assert.Equal(t, "#apple", cards[0].Name)
	assert.Equal(t, "#banana", cards[1].Name)
}

func TestCardRepository_Update(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	card := testCard("card-1", "#apple", "#fruit")
	require.NoError(t, repo.Create(ctx, card))

	card.Body = "updated"
	card.Hashtags = []string{"#fruit", "#snack"}
	require.NoError(t, repo.Update(ctx, card))

	got, err := repo.Get(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Body)
	assert.Equal(t, []string{"#fruit", "#snack"}, got.Hashtags)
}

func TestCardRepository_UpdateNotFound(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))

	err := repo.Update(context.Background(), testCard("ghost", "#ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCardRepository_SoftDelete(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCard("card-1", "#apple", "#fruit")))
	require.NoError(t, repo.SoftDelete(ctx, "card-1"))

	got, err := repo.Get(ctx, "card-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	cards, err := repo.ListActiveByHashtag(ctx, "t1", "#fruit")
	require.NoError(t, err)
	assert.Empty(t, cards)

	assert.ErrorIs(t, repo.SoftDelete(ctx, "missing"), ErrNotFound)
}

func TestCardRepository_Exists(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCard("card-1", "#apple")))

	exists, err := repo.Exists(ctx, "t1", "card-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "t2", "card-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCardRepository_List(t *testing.T) {
	repo := NewCardRepository(setupCardTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCard("card-b", "#banana")))
	inactive := testCard("card-a", "#apple")
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, inactive))

	cards, err := repo.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "#apple", cards[0].Name)
	assert.Equal(t, "#banana", cards[1].Name)
}
