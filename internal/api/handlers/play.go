package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/narimato/narimato/internal/api/response"
	"github.com/narimato/narimato/internal/play"
	"github.com/narimato/narimato/internal/storage/models"
)

// PlayHandler handles play session API requests.
type PlayHandler struct {
	service *play.Service
}

// NewPlayHandler creates a new PlayHandler.
func NewPlayHandler(service *play.Service) *PlayHandler {
	return &PlayHandler{service: service}
}

// StartPlayRequest represents a request to start a play.
type StartPlayRequest struct {
	TenantID  string `json:"tenant_id"`
	DeckTag   string `json:"deck_tag"`
	SessionID string `json:"session_id,omitempty"`
}

// SwipeRequest represents a swipe on the current card.
type SwipeRequest struct {
	CardID    string           `json:"card_id"`
	Direction models.Direction `json:"direction"`
	Version   *int64           `json:"version,omitempty"`
}

// VoteRequest represents a vote resolving the pending comparison.
type VoteRequest struct {
	CardA   string `json:"card_a"`
	CardB   string `json:"card_b"`
	Winner  string `json:"winner"`
	Version *int64 `json:"version,omitempty"`
}

// StartPlay creates a new play for a deck tag.
func (h *PlayHandler) StartPlay(w http.ResponseWriter, r *http.Request) {
	var req StartPlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.TenantID == "" || req.DeckTag == "" {
		response.BadRequest(w, errors.New("tenant_id and deck_tag are required"))
		return
	}

	result, err := h.service.StartPlay(r.Context(), req.TenantID, req.DeckTag, req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.Created(w, result)
}

// GetPlay returns the full play state.
func (h *PlayHandler) GetPlay(w http.ResponseWriter, r *http.Request) {
	playID := chi.URLParam(r, "playID")
	if playID == "" {
		response.BadRequest(w, errors.New("play ID is required"))
		return
	}

	p, err := h.service.GetPlay(r.Context(), playID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.Success(w, p)
}

// Swipe records a like/dislike on the current card.
func (h *PlayHandler) Swipe(w http.ResponseWriter, r *http.Request) {
	playID := chi.URLParam(r, "playID")
	if playID == "" {
		response.BadRequest(w, errors.New("play ID is required"))
		return
	}

	var req SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.CardID == "" {
		response.BadRequest(w, errors.New("card_id is required"))
		return
	}

	result, err := h.service.Swipe(r.Context(), playID, req.CardID, req.Direction, req.Version)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.Success(w, result)
}

// Vote resolves the pending comparison.
func (h *PlayHandler) Vote(w http.ResponseWriter, r *http.Request) {
	playID := chi.URLParam(r, "playID")
	if playID == "" {
		response.BadRequest(w, errors.New("play ID is required"))
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.CardA == "" || req.CardB == "" || req.Winner == "" {
		response.BadRequest(w, errors.New("card_a, card_b, and winner are required"))
		return
	}

	result, err := h.service.Vote(r.Context(), playID, req.CardA, req.CardB, req.Winner, req.Version)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.Success(w, result)
}

// CompleteHierarchical re-drives the parent of a completed child play.
// Recovery path for parents stuck in waiting_for_children.
func (h *PlayHandler) CompleteHierarchical(w http.ResponseWriter, r *http.Request) {
	playID := chi.URLParam(r, "playID")
	if playID == "" {
		response.BadRequest(w, errors.New("play ID is required"))
		return
	}

	if err := h.service.CompleteHierarchical(r.Context(), playID); err != nil {
		writeDomainError(w, err)
		return
	}

	response.NoContent(w)
}
