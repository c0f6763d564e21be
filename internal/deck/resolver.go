// Package deck resolves decks and card hierarchies from hashtag
// metadata. A deck is the set of active cards carrying the deck tag; a
// card's children are the active cards carrying that card's name as a
// hashtag.
package deck

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// ErrDeckTooSmall is returned when a deck tag resolves to fewer than
// two playable cards.
var ErrDeckTooSmall = errors.New("deck needs at least 2 cards")

// MinDeckSize is the smallest deck a play can be started on.
const MinDeckSize = 2

// deckNamespace is the fixed UUID namespace for deriving deterministic
// deck UUIDs from a tag and its card set.
var deckNamespace = uuid.MustParse("9a7b1c6e-2f34-4d58-9c01-7e5a8b3d4f62")

// Deck is a resolved deck: the playable card IDs plus the subset that
// is parent-eligible (has at least two active children).
type Deck struct {
	Tag            string
	CardIDs        []string
	ParentEligible map[string]bool
}

// IsHierarchical reports whether any card of the deck can spawn a
// child ranking session.
func (d *Deck) IsHierarchical() bool {
	return len(d.ParentEligible) > 0
}

// Resolver resolves decks and parent/child relationships.
type Resolver struct {
	cards repository.CardRepository
}

// NewResolver creates a new deck resolver.
func NewResolver(cards repository.CardRepository) *Resolver {
	return &Resolver{cards: cards}
}

// ResolveDeck returns the active cards of the tenant whose hashtags
// contain deckTag, along with the parent-eligible subset. Returns
// ErrDeckTooSmall for decks under MinDeckSize.
func (r *Resolver) ResolveDeck(ctx context.Context, tenantID, deckTag string) (*Deck, error) {
	cards, err := r.cards.ListActiveByHashtag(ctx, tenantID, deckTag)
	if err != nil {
		return nil, fmt.Errorf("resolve deck %q: %w", deckTag, err)
	}
	if len(cards) < MinDeckSize {
		return nil, ErrDeckTooSmall
	}

	deck := &Deck{
		Tag:            deckTag,
		CardIDs:        make([]string, 0, len(cards)),
		ParentEligible: make(map[string]bool),
	}
	for _, card := range cards {
		deck.CardIDs = append(deck.CardIDs, card.ID)

		children, err := r.cards.ListActiveByHashtag(ctx, tenantID, card.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve children of %q: %w", card.Name, err)
		}
		if countOthers(children, card.ID) >= MinDeckSize {
			deck.ParentEligible[card.ID] = true
		}
	}

	return deck, nil
}

// ResolveChildren returns the IDs of active cards whose hashtags
// contain the parent card's name. Returns an empty slice when the
// parent has no children or does not exist.
func (r *Resolver) ResolveChildren(ctx context.Context, tenantID, parentCardID string) ([]string, error) {
	parent, err := r.cards.Get(ctx, parentCardID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("load parent card: %w", err)
	}

	children, err := r.cards.ListActiveByHashtag(ctx, tenantID, parent.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve children of %q: %w", parent.Name, err)
	}

	ids := make([]string, 0, len(children))
	for _, child := range children {
		// A card never parents itself, even if a self-referential
		// hashtag slips in through an external write.
		if child.ID == parentCardID {
			continue
		}
		ids = append(ids, child.ID)
	}
	return ids, nil
}

// ResolveChildDeck returns the parent card's name (the child deck tag)
// together with its child card IDs. Used when forking a child ranking
// session under a parent card.
func (r *Resolver) ResolveChildDeck(ctx context.Context, tenantID, parentCardID string) (string, []string, error) {
	parent, err := r.cards.Get(ctx, parentCardID)
	if err != nil {
		return "", nil, fmt.Errorf("load parent card: %w", err)
	}

	children, err := r.ResolveChildren(ctx, tenantID, parentCardID)
	if err != nil {
		return "", nil, err
	}
	return parent.Name, children, nil
}

// UUID derives the deterministic deck UUID from the tag and the card
// set: v5 over "tag|id1,id2,..." with the IDs sorted. The same card set
// under the same tag always yields the same UUID regardless of shuffle
// order.
func UUID(deckTag string, cardIDs []string) string {
	sorted := make([]string, len(cardIDs))
	copy(sorted, cardIDs)
	sort.Strings(sorted)

	name := deckTag + "|" + strings.Join(sorted, ",")
	return uuid.NewSHA1(deckNamespace, []byte(name)).String()
}

func countOthers(cards []*models.Card, excludeID string) int {
	n := 0
	for _, c := range cards {
		if c.ID != excludeID {
			n++
		}
	}
	return n
}
