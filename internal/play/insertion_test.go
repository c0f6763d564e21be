package play

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narimato/narimato/internal/storage/models"
)

func vote(a, b, winner string) models.Vote {
	return models.Vote{CardA: a, CardB: b, Winner: winner, Timestamp: time.Now().UTC()}
}

func TestSearchBounds_NoVotes(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}

	bounds := searchBounds(ranking, "e", nil)

	assert.Equal(t, 0, bounds.Start)
	assert.Equal(t, 4, bounds.End)
	assert.False(t, bounds.Collapsed)
}

func TestSearchBounds_WinNarrowsEnd(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}
	votes := []models.Vote{vote("e", "c", "e")}

	bounds := searchBounds(ranking, "e", votes)

	// Beating the card at index 2 constrains e strictly above it.
	assert.Equal(t, 0, bounds.Start)
	assert.Equal(t, 2, bounds.End)
	assert.False(t, bounds.Collapsed)
}

func TestSearchBounds_LossNarrowsStart(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}
	votes := []models.Vote{vote("e", "b", "b")}

	bounds := searchBounds(ranking, "e", votes)

	// Losing to the card at index 1 constrains e strictly below it.
	assert.Equal(t, 2, bounds.Start)
	assert.Equal(t, 4, bounds.End)
	assert.False(t, bounds.Collapsed)
}

func TestSearchBounds_AccumulatesToCollapse(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}
	votes := []models.Vote{
		vote("e", "c", "e"), // above index 2
		vote("e", "b", "b"), // below index 1
	}

	bounds := searchBounds(ranking, "e", votes)

	assert.Equal(t, 2, bounds.Start)
	assert.Equal(t, 2, bounds.End)
	assert.True(t, bounds.Collapsed)
}

func TestSearchBounds_IgnoresVotesForOtherCards(t *testing.T) {
	ranking := []string{"a", "b"}
	votes := []models.Vote{vote("x", "a", "x")}

	bounds := searchBounds(ranking, "e", votes)

	assert.Equal(t, 0, bounds.Start)
	assert.Equal(t, 2, bounds.End)
}

func TestNextComparison_EmptyRanking(t *testing.T) {
	assert.Nil(t, nextComparison(nil, "e", nil))
}

func TestNextComparison_AlreadyRanked(t *testing.T) {
	ranking := []string{"a", "b", "c"}
	assert.Nil(t, nextComparison(ranking, "b", nil))
}

func TestNextComparison_Midpoint(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}

	comp := nextComparison(ranking, "e", nil)

	require.NotNil(t, comp)
	assert.Equal(t, "e", comp.NewCard)
	assert.Equal(t, "c", comp.CompareWith)
	assert.Equal(t, Bounds{Start: 0, End: 4}, comp.Bounds)
	assert.InDelta(t, 0.25, comp.InformationGain, 1e-9)
}

func TestNextComparison_CollapsedBounds(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}
	votes := []models.Vote{
		vote("e", "c", "e"),
		vote("e", "b", "b"),
	}

	assert.Nil(t, nextComparison(ranking, "e", votes))
}

func TestNextComparison_NeverRepeatsAPair(t *testing.T) {
	// Drive a full positioning episode and check each proposed pair is
	// fresh. The hidden preference places e between b and c.
	ranking := []string{"a", "b", "c", "d", "f", "g", "h"}
	prefers := map[string]bool{"a": false, "b": false, "c": true, "d": true, "f": true, "g": true, "h": true}

	var votes []models.Vote
	seen := make(map[string]bool)
	for {
		comp := nextComparison(ranking, "e", votes)
		if comp == nil {
			break
		}
		require.False(t, seen[comp.CompareWith], "pair (e, %s) proposed twice", comp.CompareWith)
		seen[comp.CompareWith] = true

		winner := comp.CompareWith
		if prefers[comp.CompareWith] {
			winner = "e"
		}
		votes = append(votes, vote("e", comp.CompareWith, winner))
	}

	out, inserted := insertAt(ranking, "e", votes)
	require.True(t, inserted)
	assert.Equal(t, []string{"a", "b", "e", "c", "d", "f", "g", "h"}, out)
}

func TestInsertAt_AlreadyPresent(t *testing.T) {
	ranking := []string{"a", "b", "c"}

	out, inserted := insertAt(ranking, "b", nil)

	assert.True(t, inserted)
	assert.Equal(t, ranking, out)
}

func TestInsertAt_OpenBoundsNeedsMoreVotes(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}
	votes := []models.Vote{vote("e", "c", "e")}

	out, inserted := insertAt(ranking, "e", votes)

	assert.False(t, inserted)
	assert.Equal(t, ranking, out)
}

func TestInsertAt_CollapsedPosition(t *testing.T) {
	ranking := []string{"a", "b", "c", "d"}
	votes := []models.Vote{
		vote("e", "c", "e"),
		vote("e", "b", "b"),
	}

	out, inserted := insertAt(ranking, "e", votes)

	require.True(t, inserted)
	assert.Equal(t, []string{"a", "b", "e", "c", "d"}, out)
}

func TestInsertAt_Idempotent(t *testing.T) {
	ranking := []string{"a", "b"}
	votes := []models.Vote{vote("e", "a", "e")}

	once, inserted := insertAt(ranking, "e", votes)
	require.True(t, inserted)

	twice, inserted := insertAt(once, "e", votes)
	assert.True(t, inserted)
	assert.Equal(t, once, twice)
}

// TestInsertion_Convergence builds a ranking card by card against a
// hidden total order and checks both the final order and the per-card
// comparison budget of ceil(log2(n+1))+1.
func TestInsertion_Convergence(t *testing.T) {
	// Preference is alphabetical: "a" is the most preferred.
	cards := []string{"m", "c", "t", "a", "h", "z", "q", "e", "k", "w"}
	truth := func(x, y string) string {
		if x < y {
			return x
		}
		return y
	}

	var ranking []string
	for _, card := range cards {
		if len(ranking) == 0 {
			ranking = []string{card}
			continue
		}

		var votes []models.Vote
		for {
			comp := nextComparison(ranking, card, votes)
			if comp == nil {
				break
			}
			votes = append(votes, vote(card, comp.CompareWith, truth(card, comp.CompareWith)))
		}

		budget := int(math.Ceil(math.Log2(float64(len(ranking)+1)))) + 1
		assert.LessOrEqual(t, len(votes), budget, "card %s used %d votes over budget %d", card, len(votes), budget)

		var inserted bool
		ranking, inserted = insertAt(ranking, card, votes)
		require.True(t, inserted, "card %s did not insert", card)
	}

	want := make([]string, len(cards))
	copy(want, cards)
	sort.Strings(want)
	assert.Equal(t, want, ranking)
}
