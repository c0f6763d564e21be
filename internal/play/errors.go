package play

import "errors"

// Domain errors of the play engine. Handlers map these onto HTTP
// statuses; everything else surfaces as an internal error.
var (
	// ErrNotFound is returned when the play does not exist.
	ErrNotFound = errors.New("play not found")

	// ErrExpired is returned once a play has passed its expiry
	// deadline. No input mutates an expired play.
	ErrExpired = errors.New("play expired")

	// ErrWrongState is returned when an input does not match the play
	// state, e.g. a vote while swiping.
	ErrWrongState = errors.New("input not valid in current state")

	// ErrCardMismatch is returned when a swipe targets a card other
	// than the next unswiped deck card.
	ErrCardMismatch = errors.New("card is not the current card")

	// ErrPairMismatch is returned when a vote names a pair other than
	// the one awaiting resolution.
	ErrPairMismatch = errors.New("pair does not match current comparison")

	// ErrInvalidWinner is returned when the winner is not a member of
	// the voted pair, or the pair compares a card against itself.
	ErrInvalidWinner = errors.New("winner must be one of the compared cards")

	// ErrConcurrentModification is returned when an optimistic update
	// loses the race or the supplied client version is stale. Safe to
	// retry after re-reading the play.
	ErrConcurrentModification = errors.New("play was modified concurrently")

	// ErrDuplicateInput is returned when an input replays a recorded
	// card or pair with a different payload. Exact replays are
	// idempotent and succeed instead.
	ErrDuplicateInput = errors.New("conflicting duplicate input")

	// ErrNotChildPlay is returned when a child-completion is requested
	// for a play that has no parent.
	ErrNotChildPlay = errors.New("play is not a child play")

	// ErrInvalidDirection is returned when a swipe direction is neither
	// left nor right.
	ErrInvalidDirection = errors.New("direction must be left or right")
)
