package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/narimato/narimato/internal/api/response"
	"github.com/narimato/narimato/internal/deck"
	"github.com/narimato/narimato/internal/rating"
	"github.com/narimato/narimato/internal/storage/models"
)

// RankingHandler handles global ranking API requests.
type RankingHandler struct {
	aggregator *rating.Aggregator
	resolver   *deck.Resolver
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(aggregator *rating.Aggregator, resolver *deck.Resolver) *RankingHandler {
	return &RankingHandler{aggregator: aggregator, resolver: resolver}
}

// RecomputeRequest represents a request to recompute a tenant's
// rankings.
type RecomputeRequest struct {
	TenantID string `json:"tenant_id"`
}

// GetLeaderboard returns the deck's cards in global ELO order. Deck
// tags are hashtags, so the path segment arrives percent-encoded.
func (h *RankingHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	deckTag, err := url.PathUnescape(chi.URLParam(r, "deckTag"))
	if err != nil {
		response.BadRequest(w, errors.New("invalid deck tag"))
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	if deckTag == "" || tenantID == "" {
		response.BadRequest(w, errors.New("deck tag and tenant_id are required"))
		return
	}

	resolved, err := h.resolver.ResolveDeck(r.Context(), tenantID, deckTag)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.aggregator.Leaderboard(r.Context(), tenantID)
	if err != nil {
		response.InternalError(w, err)
		return
	}

	inDeck := make(map[string]bool, len(resolved.CardIDs))
	for _, id := range resolved.CardIDs {
		inDeck[id] = true
	}

	// Leaderboard order is preserved from the aggregator; unrated deck
	// cards are omitted.
	filtered := make([]*models.GlobalRanking, 0, len(resolved.CardIDs))
	for _, entry := range entries {
		if inDeck[entry.CardID] {
			filtered = append(filtered, entry)
		}
	}

	response.Success(w, filtered)
}

// Recompute triggers a synchronous global ranking recompute for a
// tenant and returns the run summary.
func (h *RankingHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.TenantID == "" {
		response.BadRequest(w, errors.New("tenant_id is required"))
		return
	}

	summary, err := h.aggregator.Recompute(r.Context(), req.TenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.Success(w, summary)
}
