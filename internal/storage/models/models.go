// Package models defines the persisted record types for cards, plays,
// and global rankings.
package models

import "time"

// TimestampFormat is the canonical storage format for timestamps:
// RFC3339 with millisecond precision, always UTC.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Direction is a swipe direction.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight
}

// PlayStatus is the lifecycle status of a play.
type PlayStatus string

const (
	PlayStatusActive             PlayStatus = "active"
	PlayStatusWaitingForChildren PlayStatus = "waiting_for_children"
	PlayStatusCompleted          PlayStatus = "completed"
	PlayStatusExpired            PlayStatus = "expired"
)

// PlayState is the input state of a play: which kind of input the
// engine will accept next.
type PlayState string

const (
	PlayStateSwiping   PlayState = "swiping"
	PlayStateVoting    PlayState = "voting"
	PlayStateCompleted PlayState = "completed"
)

// HierarchicalPhase tracks progress through the parent/child
// decision-tree expansion of a completed play.
type HierarchicalPhase string

const (
	PhaseNone      HierarchicalPhase = "none"
	PhaseParents   HierarchicalPhase = "parents"
	PhaseChildren  HierarchicalPhase = "children"
	PhaseFinalized HierarchicalPhase = "finalized"
)

// Card is a rankable item. The body is opaque to the engine; hashtags
// carry the parent/child relationships (a card whose name appears in
// another card's hashtags is that card's parent).
type Card struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	Hashtags  []string  `json:"hashtags"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Swipe is a single like/dislike decision on a card.
type Swipe struct {
	CardID    string    `json:"card_id"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// Vote is a single pairwise comparison. Winner is always one of CardA
// or CardB and the two are never equal.
type Vote struct {
	CardA     string    `json:"card_a"`
	CardB     string    `json:"card_b"`
	Winner    string    `json:"winner"`
	Timestamp time.Time `json:"timestamp"`
	TimedOut  bool      `json:"timed_out,omitempty"`
}

// CardPair is the comparison currently awaiting a vote.
type CardPair struct {
	CardA string `json:"card_a"`
	CardB string `json:"card_b"`
}

// Matches reports whether the pair equals (a, b) in either order.
func (p CardPair) Matches(a, b string) bool {
	return (p.CardA == a && p.CardB == b) || (p.CardA == b && p.CardB == a)
}

// HierarchicalState is the persisted progress of the child sub-session
// expansion. Pending lists parent-eligible card IDs in personal-ranking
// order; Index is the position of the child session currently running;
// Results maps a parent card ID to its completed child ranking.
type HierarchicalState struct {
	Pending []string            `json:"pending"`
	Index   int                 `json:"index"`
	Results map[string][]string `json:"results"`
	ChildID string              `json:"child_id,omitempty"`
}

// Play is one user's run through a deck. Swipes and votes are
// append-only; the stored order is authoritative.
type Play struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id,omitempty"`

	DeckUUID string   `json:"deck_uuid"`
	DeckTag  string   `json:"deck_tag"`
	Deck     []string `json:"deck"`

	Status  PlayStatus `json:"status"`
	State   PlayState  `json:"state"`
	Version int64      `json:"version"`

	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`

	Swipes              []Swipe   `json:"swipes"`
	Votes               []Vote    `json:"votes"`
	PersonalRanking     []string  `json:"personal_ranking"`
	HierarchicalRanking []string  `json:"hierarchical_ranking,omitempty"`
	CurrentPair         *CardPair `json:"current_pair,omitempty"`

	HierarchicalPhase HierarchicalPhase  `json:"hierarchical_phase"`
	ParentPlayID      string             `json:"parent_play_id,omitempty"`
	HierarchicalState *HierarchicalState `json:"hierarchical_state,omitempty"`
}

// HasSwiped reports whether a swipe for cardID has been recorded.
func (p *Play) HasSwiped(cardID string) bool {
	for _, s := range p.Swipes {
		if s.CardID == cardID {
			return true
		}
	}
	return false
}

// SwipeFor returns the recorded swipe for cardID, if any.
func (p *Play) SwipeFor(cardID string) (Swipe, bool) {
	for _, s := range p.Swipes {
		if s.CardID == cardID {
			return s, true
		}
	}
	return Swipe{}, false
}

// NextUnswiped returns the first deck card without a recorded swipe.
// The second return is false once the deck is exhausted.
func (p *Play) NextUnswiped() (string, bool) {
	for _, id := range p.Deck {
		if !p.HasSwiped(id) {
			return id, true
		}
	}
	return "", false
}

// InRanking reports whether cardID is already positioned in the
// personal ranking.
func (p *Play) InRanking(cardID string) bool {
	for _, id := range p.PersonalRanking {
		if id == cardID {
			return true
		}
	}
	return false
}

// HasVote reports whether the exact vote tuple has been recorded.
func (p *Play) HasVote(cardA, cardB, winner string) bool {
	for _, v := range p.Votes {
		if v.CardA == cardA && v.CardB == cardB && v.Winner == winner {
			return true
		}
	}
	return false
}

// Expired reports whether the play has passed its expiry deadline.
func (p *Play) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// GlobalRanking is one card's aggregated ELO standing for a tenant.
type GlobalRanking struct {
	TenantID    string    `json:"tenant_id"`
	CardID      string    `json:"card_id"`
	ELORating   int       `json:"elo_rating"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	TotalGames  int       `json:"total_games"`
	WinRate     float64   `json:"win_rate"`
	LastUpdated time.Time `json:"last_updated"`
}
