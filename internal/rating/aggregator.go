// Package rating aggregates the votes of completed plays into a global
// per-card ELO leaderboard.
package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

const (
	// InitialRating seeds any card first observed in a vote.
	InitialRating = 1000

	// DefaultKFactor is the chess-style K used per vote.
	DefaultKFactor = 32

	// DefaultWindow bounds how many recent completed plays one
	// recompute scans per tenant.
	DefaultWindow = 500
)

// ErrAlreadyRunning is returned when a recompute for the tenant is
// already in flight.
var ErrAlreadyRunning = errors.New("recompute already running for tenant")

// Summary reports what one recompute run did.
type Summary struct {
	PlaysScanned int `json:"plays_scanned"`
	VotesApplied int `json:"votes_applied"`
	VotesDropped int `json:"votes_dropped"`
	CardsRated   int `json:"cards_rated"`
}

// Config holds the aggregator tunables.
type Config struct {
	// Window bounds the replay to the N most recent completed plays.
	Window int

	// KFactor is the ELO K constant.
	KFactor float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Aggregator replays the votes of completed plays chronologically and
// writes per-card ELO standings. It never touches plays or personal
// rankings, and runs at most once concurrently per tenant.
type Aggregator struct {
	plays    repository.PlayRepository
	cards    repository.CardRepository
	rankings repository.RankingRepository
	window   int
	k        float64
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewAggregator creates the rating aggregator.
func NewAggregator(plays repository.PlayRepository, cards repository.CardRepository, rankings repository.RankingRepository, cfg Config) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.KFactor <= 0 {
		cfg.KFactor = DefaultKFactor
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		plays:    plays,
		cards:    cards,
		rankings: rankings,
		window:   cfg.Window,
		k:        cfg.KFactor,
		logger:   cfg.Logger,
		running:  make(map[string]bool),
	}
}

// replayVote is one vote tagged with its origin for deterministic
// ordering under equal timestamps.
type replayVote struct {
	models.Vote
	playID string
	index  int
}

// Recompute replays the tenant's recent completed plays and rewrites
// the global rankings in one transactional upsert. A second concurrent
// invocation for the same tenant returns ErrAlreadyRunning.
func (a *Aggregator) Recompute(ctx context.Context, tenantID string) (*Summary, error) {
	if !a.tryAcquire(tenantID) {
		return nil, ErrAlreadyRunning
	}
	defer a.release(tenantID)

	started := time.Now()

	plays, err := a.plays.ListCompleted(ctx, tenantID, a.window)
	if err != nil {
		return nil, fmt.Errorf("list completed plays: %w", err)
	}

	standings, err := a.seedStandings(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	votes, dropped, err := a.collectVotes(ctx, tenantID, plays)
	if err != nil {
		return nil, err
	}

	for _, v := range votes {
		a.applyVote(standings, tenantID, v.Vote)
	}

	now := time.Now().UTC()
	entries := make([]*models.GlobalRanking, 0, len(standings))
	for _, entry := range standings {
		entry.WinRate = winRate(entry.Wins, entry.TotalGames)
		entry.LastUpdated = now
		entries = append(entries, entry)
	}
	// Stable write order; the upsert itself is order-insensitive but
	// deterministic batches make failures reproducible.
	sort.Slice(entries, func(i, j int) bool { return entries[i].CardID < entries[j].CardID })

	if len(entries) > 0 {
		if err := a.rankings.UpsertAll(ctx, entries); err != nil {
			return nil, fmt.Errorf("write rankings: %w", err)
		}
	}

	summary := &Summary{
		PlaysScanned: len(plays),
		VotesApplied: len(votes),
		VotesDropped: dropped,
		CardsRated:   len(entries),
	}

	a.logger.Info("global rankings recomputed",
		"tenant_id", tenantID, "plays", summary.PlaysScanned, "votes", summary.VotesApplied,
		"dropped", summary.VotesDropped, "cards", summary.CardsRated,
		"elapsed", time.Since(started))
	return summary, nil
}

// Leaderboard returns the tenant's standings in display order: rating
// desc, win rate desc, games desc, last updated desc, card ID asc.
func (a *Aggregator) Leaderboard(ctx context.Context, tenantID string) ([]*models.GlobalRanking, error) {
	entries, err := a.rankings.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.GlobalRanking{}
	}
	return entries, nil
}

// seedStandings loads the existing rankings of the tenant as the
// starting state.
func (a *Aggregator) seedStandings(ctx context.Context, tenantID string) (map[string]*models.GlobalRanking, error) {
	existing, err := a.rankings.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load existing rankings: %w", err)
	}

	standings := make(map[string]*models.GlobalRanking, len(existing))
	for _, entry := range existing {
		e := *entry
		standings[e.CardID] = &e
	}
	return standings, nil
}

// collectVotes gathers the valid votes of the plays in deterministic
// chronological order. Malformed votes are dropped with a warning
// counter, never an error.
func (a *Aggregator) collectVotes(ctx context.Context, tenantID string, plays []*models.Play) ([]replayVote, int, error) {
	var votes []replayVote
	dropped := 0
	known := make(map[string]bool)

	cardKnown := func(cardID string) (bool, error) {
		if exists, seen := known[cardID]; seen {
			return exists, nil
		}
		exists, err := a.cards.Exists(ctx, tenantID, cardID)
		if err != nil {
			return false, fmt.Errorf("check card %s: %w", cardID, err)
		}
		known[cardID] = exists
		return exists, nil
	}

	for _, p := range plays {
		for i, v := range p.Votes {
			if v.CardA == v.CardB || (v.Winner != v.CardA && v.Winner != v.CardB) {
				dropped++
				continue
			}
			okA, err := cardKnown(v.CardA)
			if err != nil {
				return nil, 0, err
			}
			okB, err := cardKnown(v.CardB)
			if err != nil {
				return nil, 0, err
			}
			if !okA || !okB {
				dropped++
				continue
			}
			votes = append(votes, replayVote{Vote: v, playID: p.ID, index: i})
		}
	}

	if dropped > 0 {
		a.logger.Warn("dropped malformed votes", "tenant_id", tenantID, "count", dropped)
	}

	sort.SliceStable(votes, func(i, j int) bool {
		vi, vj := votes[i], votes[j]
		if !vi.Timestamp.Equal(vj.Timestamp) {
			return vi.Timestamp.Before(vj.Timestamp)
		}
		if vi.playID != vj.playID {
			return vi.playID < vj.playID
		}
		return vi.index < vj.index
	})

	return votes, dropped, nil
}

// applyVote runs one ELO update. Rounding is half-to-even on each step
// to avoid systemic drift.
func (a *Aggregator) applyVote(standings map[string]*models.GlobalRanking, tenantID string, v models.Vote) {
	ea := a.entry(standings, tenantID, v.CardA)
	eb := a.entry(standings, tenantID, v.CardB)

	ra, rb := float64(ea.ELORating), float64(eb.ELORating)
	expectA := 1 / (1 + math.Pow(10, (rb-ra)/400))
	expectB := 1 - expectA

	scoreA := 0.0
	if v.Winner == v.CardA {
		scoreA = 1
	}
	scoreB := 1 - scoreA

	ea.ELORating = int(math.RoundToEven(ra + a.k*(scoreA-expectA)))
	eb.ELORating = int(math.RoundToEven(rb + a.k*(scoreB-expectB)))

	ea.TotalGames++
	eb.TotalGames++
	if v.Winner == v.CardA {
		ea.Wins++
		eb.Losses++
	} else {
		eb.Wins++
		ea.Losses++
	}
}

func (a *Aggregator) entry(standings map[string]*models.GlobalRanking, tenantID, cardID string) *models.GlobalRanking {
	if e, ok := standings[cardID]; ok {
		return e
	}
	e := &models.GlobalRanking{TenantID: tenantID, CardID: cardID, ELORating: InitialRating}
	standings[cardID] = e
	return e
}

func winRate(wins, games int) float64 {
	if games == 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(games)*1000) / 1000
}

func (a *Aggregator) tryAcquire(tenantID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running[tenantID] {
		return false
	}
	a.running[tenantID] = true
	return true
}

func (a *Aggregator) release(tenantID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.running, tenantID)
}
