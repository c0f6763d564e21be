package deck

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// fakeCardRepo is an in-memory stand-in for the SQL card repository.
type fakeCardRepo struct {
	cards map[string]*models.Card
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[string]*models.Card)}
}

func (r *fakeCardRepo) add(tenantID, id, name string, hashtags ...string) {
	now := time.Now().UTC()
	r.cards[id] = &models.Card{
		ID: id, TenantID: tenantID, Name: name, Hashtags: hashtags,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

func (r *fakeCardRepo) Create(context.Context, *models.Card) error { return nil }
func (r *fakeCardRepo) Update(context.Context, *models.Card) error { return nil }

func (r *fakeCardRepo) Get(_ context.Context, id string) (*models.Card, error) {
	card, ok := r.cards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return card, nil
}

func (r *fakeCardRepo) GetByName(_ context.Context, tenantID, name string) (*models.Card, error) {
	for _, card := range r.cards {
		if card.TenantID == tenantID && card.Name == name {
			return card, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeCardRepo) ListActiveByHashtag(_ context.Context, tenantID, tag string) ([]*models.Card, error) {
	var out []*models.Card
	for _, card := range r.cards {
		if card.TenantID != tenantID || !card.IsActive {
			continue
		}
		for _, h := range card.Hashtags {
			if h == tag {
				out = append(out, card)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeCardRepo) List(context.Context, string) ([]*models.Card, error) { return nil, nil }

func (r *fakeCardRepo) Exists(_ context.Context, tenantID, id string) (bool, error) {
	card, ok := r.cards[id]
	return ok && card.TenantID == tenantID, nil
}

func (r *fakeCardRepo) SoftDelete(_ context.Context, id string) error {
	card, ok := r.cards[id]
	if !ok {
		return repository.ErrNotFound
	}
	card.IsActive = false
	return nil
}

func TestResolveDeck(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "fruit", "#fruit", "#food")
	cards.add("t1", "water", "#water", "#food")
	cards.add("t1", "apple", "#apple", "#fruit")
	cards.add("t1", "banana", "#banana", "#fruit")
	cards.add("t1", "stranger", "#stranger", "#other")
	resolver := NewResolver(cards)

	deck, err := resolver.ResolveDeck(context.Background(), "t1", "#food")
	require.NoError(t, err)

	assert.Equal(t, "#food", deck.Tag)
	assert.Equal(t, []string{"fruit", "water"}, deck.CardIDs)
	assert.True(t, deck.ParentEligible["fruit"])
	assert.False(t, deck.ParentEligible["water"])
	assert.True(t, deck.IsHierarchical())
}

func TestResolveDeck_TooSmall(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "solo", "#solo", "#lonely")
	resolver := NewResolver(cards)

	_, err := resolver.ResolveDeck(context.Background(), "t1", "#lonely")
	assert.ErrorIs(t, err, ErrDeckTooSmall)
}

func TestResolveDeck_TenantIsolation(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "a1", "#a", "#shared")
	cards.add("t1", "b1", "#b", "#shared")
	cards.add("t2", "a2", "#a", "#shared")
	resolver := NewResolver(cards)

	deck, err := resolver.ResolveDeck(context.Background(), "t1", "#shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1"}, deck.CardIDs)

	_, err = resolver.ResolveDeck(context.Background(), "t2", "#shared")
	assert.ErrorIs(t, err, ErrDeckTooSmall)
}

func TestResolveDeck_SingleChildNotParentEligible(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "fruit", "#fruit", "#food")
	cards.add("t1", "water", "#water", "#food")
	cards.add("t1", "apple", "#apple", "#fruit")
	resolver := NewResolver(cards)

	deck, err := resolver.ResolveDeck(context.Background(), "t1", "#food")
	require.NoError(t, err)
	assert.False(t, deck.ParentEligible["fruit"])
	assert.False(t, deck.IsHierarchical())
}

func TestResolveChildren(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "fruit", "#fruit", "#food")
	cards.add("t1", "apple", "#apple", "#fruit")
	cards.add("t1", "banana", "#banana", "#fruit")
	resolver := NewResolver(cards)

	children, err := resolver.ResolveChildren(context.Background(), "t1", "fruit")
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "banana"}, children)
}

func TestResolveChildren_ExcludesSelfReference(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "fruit", "#fruit", "#food", "#fruit")
	cards.add("t1", "apple", "#apple", "#fruit")
	resolver := NewResolver(cards)

	children, err := resolver.ResolveChildren(context.Background(), "t1", "fruit")
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, children)
}

func TestResolveChildren_MissingParent(t *testing.T) {
	resolver := NewResolver(newFakeCardRepo())

	children, err := resolver.ResolveChildren(context.Background(), "t1", "ghost")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestResolveChildDeck(t *testing.T) {
	cards := newFakeCardRepo()
	cards.add("t1", "fruit", "#fruit", "#food")
	cards.add("t1", "apple", "#apple", "#fruit")
	cards.add("t1", "banana", "#banana", "#fruit")
	resolver := NewResolver(cards)

	tag, children, err := resolver.ResolveChildDeck(context.Background(), "t1", "fruit")
	require.NoError(t, err)
	assert.Equal(t, "#fruit", tag)
	assert.Equal(t, []string{"apple", "banana"}, children)
}

func TestUUID_Deterministic(t *testing.T) {
	first := UUID("#food", []string{"a", "b", "c"})
	second := UUID("#food", []string{"c", "a", "b"})

	// The card set, not its shuffle order, determines the deck UUID.
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, UUID("#drink", []string{"a", "b", "c"}))
	assert.NotEqual(t, first, UUID("#food", []string{"a", "b"}))
}
