package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirection_Valid(t *testing.T) {
	assert.True(t, DirectionLeft.Valid())
	assert.True(t, DirectionRight.Valid())
	assert.False(t, Direction("up").Valid())
	assert.False(t, Direction("").Valid())
}

func TestCardPair_Matches(t *testing.T) {
	pair := CardPair{CardA: "a", CardB: "b"}

	assert.True(t, pair.Matches("a", "b"))
	assert.True(t, pair.Matches("b", "a"))
	assert.False(t, pair.Matches("a", "c"))
}

func TestPlay_NextUnswiped(t *testing.T) {
	p := &Play{Deck: []string{"a", "b", "c"}}

	next, ok := p.NextUnswiped()
	assert.True(t, ok)
	assert.Equal(t, "a", next)

	p.Swipes = append(p.Swipes, Swipe{CardID: "a", Direction: DirectionLeft})
	next, ok = p.NextUnswiped()
	assert.True(t, ok)
	assert.Equal(t, "b", next)

	p.Swipes = append(p.Swipes,
		Swipe{CardID: "b", Direction: DirectionRight},
		Swipe{CardID: "c", Direction: DirectionLeft},
	)
	_, ok = p.NextUnswiped()
	assert.False(t, ok)
}

func TestPlay_SwipeFor(t *testing.T) {
	p := &Play{Swipes: []Swipe{{CardID: "a", Direction: DirectionRight}}}

	s, ok := p.SwipeFor("a")
	assert.True(t, ok)
	assert.Equal(t, DirectionRight, s.Direction)

	_, ok = p.SwipeFor("b")
	assert.False(t, ok)
}

func TestPlay_HasVote(t *testing.T) {
	p := &Play{Votes: []Vote{{CardA: "a", CardB: "b", Winner: "a"}}}

	assert.True(t, p.HasVote("a", "b", "a"))
	assert.False(t, p.HasVote("a", "b", "b"))
	assert.False(t, p.HasVote("b", "a", "a"))
}

func TestPlay_Expired(t *testing.T) {
	now := time.Now().UTC()
	p := &Play{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, p.Expired(now))
	assert.True(t, p.Expired(now.Add(time.Hour)))
	assert.True(t, p.Expired(now.Add(2*time.Hour)))
}
