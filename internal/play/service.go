// Package play implements the ranking engine: the swipe/vote session
// state machine, the binary-search insertion of liked cards, and the
// hierarchical parent/child session controller.
package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/narimato/narimato/internal/deck"
	"github.com/narimato/narimato/internal/events"
	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// DefaultTTL is the play lifetime applied when the config does not
// override it.
const DefaultTTL = 24 * time.Hour

// ServiceConfig holds the tunables of the play service.
type ServiceConfig struct {
	// TTL is how long a play accepts input after creation.
	TTL time.Duration

	// VoteTimeout, when positive, enables the stale-vote sweep: a
	// pending comparison older than this is resolved with a random
	// winner. Zero disables the policy.
	VoteTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service owns play sessions: creation, swipe and vote input, and
// completion. Per-play serialization is optimistic via the play
// version; a lost race surfaces as ErrConcurrentModification.
type Service struct {
	plays       repository.PlayRepository
	resolver    *deck.Resolver
	controller  *Controller
	dispatcher  *events.Dispatcher
	ttl         time.Duration
	voteTimeout time.Duration
	logger      *slog.Logger

	// shuffle is swappable so tests can fix the deck order.
	shuffle func([]string)
}

// NewService creates the play service. The controller handles
// hierarchical expansion on completion and may share this service's
// repositories.
func NewService(plays repository.PlayRepository, resolver *deck.Resolver, controller *Controller, dispatcher *events.Dispatcher, cfg ServiceConfig) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		plays:       plays,
		resolver:    resolver,
		controller:  controller,
		dispatcher:  dispatcher,
		ttl:         cfg.TTL,
		voteTimeout: cfg.VoteTimeout,
		logger:      cfg.Logger,
		shuffle: func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
}

// StartResult is the outcome of starting a play.
type StartResult struct {
	PlayID         string `json:"play_id"`
	CurrentCardID  string `json:"current_card_id"`
	TotalCards     int    `json:"total_cards"`
	IsHierarchical bool   `json:"is_hierarchical"`
	Version        int64  `json:"version"`
}

// InputResult is the outcome of a swipe or vote.
type InputResult struct {
	PlayID          string            `json:"play_id"`
	NextCardID      string            `json:"next_card_id,omitempty"`
	RequiresVoting  bool              `json:"requires_voting"`
	CurrentPair     *models.CardPair  `json:"current_pair,omitempty"`
	ReturnToSwipe   bool              `json:"return_to_swipe,omitempty"`
	Completed       bool              `json:"completed"`
	Status          models.PlayStatus `json:"status"`
	State           models.PlayState  `json:"state"`
	NewVersion      int64             `json:"new_version"`
	AlreadyApplied  bool              `json:"already_applied,omitempty"`
	ChildPlayID     string            `json:"child_play_id,omitempty"`
	NextChildPlayID string            `json:"next_child_play_id,omitempty"`
}

// StartPlay resolves and shuffles the deck for deckTag and creates a
// fresh play in the swiping state.
func (s *Service) StartPlay(ctx context.Context, tenantID, deckTag, sessionID string) (*StartResult, error) {
	resolved, err := s.resolver.ResolveDeck(ctx, tenantID, deckTag)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(resolved.CardIDs))
	copy(ids, resolved.CardIDs)
	s.shuffle(ids)

	now := time.Now().UTC()
	p := &models.Play{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		SessionID:         sessionID,
		DeckUUID:          deck.UUID(deckTag, resolved.CardIDs),
		DeckTag:           deckTag,
		Deck:              ids,
		Status:            models.PlayStatusActive,
		State:             models.PlayStateSwiping,
		Version:           0,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         now.Add(s.ttl),
		HierarchicalPhase: models.PhaseNone,
	}

	if err := s.plays.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create play: %w", err)
	}

	s.logger.Info("play started",
		"play_id", p.ID, "tenant_id", tenantID, "deck_tag", deckTag,
		"cards", len(ids), "hierarchical", resolved.IsHierarchical())

	return &StartResult{
		PlayID:         p.ID,
		CurrentCardID:  ids[0],
		TotalCards:     len(ids),
		IsHierarchical: resolved.IsHierarchical(),
		Version:        p.Version,
	}, nil
}

// GetPlay returns the full play state.
func (s *Service) GetPlay(ctx context.Context, playID string) (*models.Play, error) {
	p, err := s.plays.Get(ctx, playID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Swipe records a like/dislike on the play's current card. A replay of
// an already recorded swipe with the identical payload is a no-op that
// returns the current post-state.
func (s *Service) Swipe(ctx context.Context, playID, cardID string, direction models.Direction, clientVersion *int64) (*InputResult, error) {
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}

	p, err := s.loadForInput(ctx, playID)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: the identical tuple returns the post-state.
	if recorded, ok := p.SwipeFor(cardID); ok {
		if recorded.Direction == direction {
			res := s.resultFor(p)
			res.AlreadyApplied = true
			return res, nil
		}
		return nil, ErrDuplicateInput
	}

	if clientVersion != nil && *clientVersion != p.Version {
		return nil, ErrConcurrentModification
	}
	if p.State == models.PlayStateVoting {
		return nil, ErrWrongState
	}
	if p.State == models.PlayStateCompleted {
		return nil, ErrWrongState
	}

	next, ok := p.NextUnswiped()
	if !ok || next != cardID {
		return nil, ErrCardMismatch
	}

	loadedVersion := p.Version
	p.Swipes = append(p.Swipes, models.Swipe{
		CardID:    cardID,
		Direction: direction,
		Timestamp: time.Now().UTC(),
	})

	if direction == models.DirectionRight {
		if len(p.PersonalRanking) == 0 {
			p.PersonalRanking = []string{cardID}
		} else if comp := nextComparison(p.PersonalRanking, cardID, p.Votes); comp != nil {
			p.State = models.PlayStateVoting
			p.CurrentPair = &models.CardPair{CardA: cardID, CardB: comp.CompareWith}
			return s.commit(ctx, p, loadedVersion, "")
		} else {
			p.PersonalRanking, _ = insertAt(p.PersonalRanking, cardID, p.Votes)
		}
	}

	var nextChild string
	if _, ok := p.NextUnswiped(); !ok {
		var err error
		if nextChild, err = s.completePlay(ctx, p); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, p, loadedVersion, nextChild)
}

// Vote resolves the pending comparison of a voting play. A replay of an
// already recorded (cardA, cardB, winner) tuple is a no-op that returns
// the current post-state.
func (s *Service) Vote(ctx context.Context, playID, cardA, cardB, winner string, clientVersion *int64) (*InputResult, error) {
	p, err := s.loadForInput(ctx, playID)
	if err != nil {
		return nil, err
	}

	if cardA == cardB || (winner != cardA && winner != cardB) {
		return nil, ErrInvalidWinner
	}

	// Idempotent replay: the identical tuple returns the post-state.
	if p.HasVote(cardA, cardB, winner) {
		res := s.resultFor(p)
		res.AlreadyApplied = true
		return res, nil
	}

	if clientVersion != nil && *clientVersion != p.Version {
		return nil, ErrConcurrentModification
	}
	if p.State != models.PlayStateVoting || p.CurrentPair == nil {
		return nil, ErrWrongState
	}
	if !p.CurrentPair.Matches(cardA, cardB) {
		return nil, ErrPairMismatch
	}

	loadedVersion := p.Version
	nextChild, err := s.applyVote(ctx, p, models.Vote{
		CardA:     cardA,
		CardB:     cardB,
		Winner:    winner,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return s.commit(ctx, p, loadedVersion, nextChild)
}

// applyVote appends the vote and advances the state machine: either the
// positioned card's bounds collapse and swiping resumes, or the next
// comparison is proposed. Returns the ID of the next child session when
// the vote completed the play and hierarchical expansion continued.
func (s *Service) applyVote(ctx context.Context, p *models.Play, vote models.Vote) (string, error) {
	// Exactly one card of the pair is the one being positioned.
	var newCard string
	inA, inB := p.InRanking(vote.CardA), p.InRanking(vote.CardB)
	switch {
	case !inA && inB:
		newCard = vote.CardA
	case inA && !inB:
		newCard = vote.CardB
	default:
		return "", ErrPairMismatch
	}

	p.Votes = append(p.Votes, vote)

	ranking, inserted := insertAt(p.PersonalRanking, newCard, p.Votes)
	if !inserted {
		comp := nextComparison(p.PersonalRanking, newCard, p.Votes)
		if comp != nil {
			p.CurrentPair = &models.CardPair{CardA: newCard, CardB: comp.CompareWith}
			return "", nil
		}
		// Defensive: selection found no candidate even though the
		// bounds were open. insertAt resolves this at the window start.
		s.logger.Warn("forcing insertion with open bounds", "play_id", p.ID, "card_id", newCard)
		ranking, _ = insertAt(p.PersonalRanking, newCard, p.Votes)
	}

	p.PersonalRanking = ranking
	p.CurrentPair = nil
	p.State = models.PlayStateSwiping

	if _, ok := p.NextUnswiped(); !ok {
		return s.completePlay(ctx, p)
	}
	return "", nil
}

// completePlay finishes the swiping/voting phase and hands the play to
// the hierarchical controller, which either finalizes it or forks the
// first child session. Returns the ID of the next child session to run,
// if any.
func (s *Service) completePlay(ctx context.Context, p *models.Play) (string, error) {
	now := time.Now().UTC()
	p.State = models.PlayStateCompleted
	p.Status = models.PlayStatusCompleted
	p.CompletedAt = &now
	p.CurrentPair = nil

	nextChild, err := s.controller.OnCompleted(ctx, p)
	if err != nil {
		return "", err
	}

	if p.Status == models.PlayStatusCompleted && s.dispatcher != nil {
		s.dispatcher.DispatchAsync(events.NewPlayCompleted(ctx, p.ID, p.TenantID, p.DeckTag, len(p.Votes)))
	}
	return nextChild, nil
}

// CompleteHierarchical re-drives the parent of a completed child play.
// Normally child completion is handled inline; this is the recovery
// path when the parent was left in waiting_for_children.
func (s *Service) CompleteHierarchical(ctx context.Context, childPlayID string) error {
	child, err := s.GetPlay(ctx, childPlayID)
	if err != nil {
		return err
	}
	if child.ParentPlayID == "" {
		return ErrNotChildPlay
	}
	if child.Status != models.PlayStatusCompleted {
		return ErrWrongState
	}
	_, err = s.controller.CompleteChild(ctx, child)
	return err
}

// ResolveStaleVotes applies the optional vote-timeout policy: any play
// whose pending comparison is older than the configured window gets a
// uniformly random winner, flagged as timed out. Returns the number of
// votes recorded. No-op when the policy is disabled.
func (s *Service) ResolveStaleVotes(ctx context.Context) (int, error) {
	if s.voteTimeout <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-s.voteTimeout)
	stale, err := s.plays.ListStaleVoting(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale voting plays: %w", err)
	}

	resolved := 0
	for _, p := range stale {
		if p.Expired(time.Now().UTC()) || p.CurrentPair == nil {
			continue
		}

		winner := p.CurrentPair.CardA
		if rand.IntN(2) == 1 {
			winner = p.CurrentPair.CardB
		}

		loadedVersion := p.Version
		_, err := s.applyVote(ctx, p, models.Vote{
			CardA:     p.CurrentPair.CardA,
			CardB:     p.CurrentPair.CardB,
			Winner:    winner,
			Timestamp: time.Now().UTC(),
			TimedOut:  true,
		})
		if err != nil {
			s.logger.Warn("stale vote resolution failed", "play_id", p.ID, "error", err)
			continue
		}
		if _, err := s.commit(ctx, p, loadedVersion, ""); err != nil {
			// A concurrent client vote beat the sweep; that is fine.
			if !errors.Is(err, ErrConcurrentModification) {
				s.logger.Warn("stale vote commit failed", "play_id", p.ID, "error", err)
			}
			continue
		}
		resolved++
	}

	return resolved, nil
}

// loadForInput loads a play and applies the checks shared by all input
// operations: existence, status, and expiry.
func (s *Service) loadForInput(ctx context.Context, playID string) (*models.Play, error) {
	p, err := s.plays.Get(ctx, playID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load play: %w", err)
	}

	if p.Expired(time.Now().UTC()) || p.Status == models.PlayStatusExpired {
		return nil, ErrExpired
	}
	if p.Status != models.PlayStatusActive && p.Status != models.PlayStatusWaitingForChildren {
		return nil, ErrWrongState
	}
	return p, nil
}

// commit writes the mutated play conditionally on the version it was
// loaded at and builds the input result.
func (s *Service) commit(ctx context.Context, p *models.Play, loadedVersion int64, nextChild string) (*InputResult, error) {
	if err := s.plays.Update(ctx, p, loadedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConcurrentModification
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("commit play: %w", err)
	}

	res := s.resultFor(p)
	res.NextChildPlayID = nextChild
	return res, nil
}

// resultFor derives the client-facing result from the play state.
func (s *Service) resultFor(p *models.Play) *InputResult {
	res := &InputResult{
		PlayID:     p.ID,
		Status:     p.Status,
		State:      p.State,
		NewVersion: p.Version,
	}

	switch p.State {
	case models.PlayStateVoting:
		res.RequiresVoting = true
		res.CurrentPair = p.CurrentPair
	case models.PlayStateSwiping:
		res.ReturnToSwipe = len(p.Votes) > 0
		if next, ok := p.NextUnswiped(); ok {
			res.NextCardID = next
		}
	case models.PlayStateCompleted:
		res.Completed = p.Status == models.PlayStatusCompleted
	}

	if p.HierarchicalState != nil && p.HierarchicalState.ChildID != "" &&
		p.Status == models.PlayStatusWaitingForChildren {
		res.ChildPlayID = p.HierarchicalState.ChildID
	}

	return res
}
