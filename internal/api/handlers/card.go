package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/narimato/narimato/internal/api/response"
	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// CardHandler handles card API requests. Cards are created and edited
// externally to the play engine; the engine only reads them.
type CardHandler struct {
	cards repository.CardRepository
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(cards repository.CardRepository) *CardHandler {
	return &CardHandler{cards: cards}
}

// CreateCardRequest represents a request to create a card.
type CreateCardRequest struct {
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Body     string   `json:"body,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// UpdateCardRequest represents a request to update a card.
type UpdateCardRequest struct {
	Name     string   `json:"name"`
	Body     string   `json:"body"`
	Hashtags []string `json:"hashtags"`
	IsActive *bool    `json:"is_active,omitempty"`
}

// validateCard enforces the card naming rules: hashtag-form name, and
// no card parents itself.
func validateCard(name string, hashtags []string) error {
	if !strings.HasPrefix(name, "#") || len(name) < 2 {
		return errors.New("card name must be a hashtag (e.g. #animals)")
	}
	for _, tag := range hashtags {
		if tag == name {
			return errors.New("card cannot list its own name as a hashtag")
		}
	}
	return nil
}

// CreateCard creates a new card.
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if req.TenantID == "" {
		response.BadRequest(w, errors.New("tenant_id is required"))
		return
	}
	if err := validateCard(req.Name, req.Hashtags); err != nil {
		response.BadRequest(w, err)
		return
	}

	card := &models.Card{
		ID:       uuid.NewString(),
		TenantID: req.TenantID,
		Name:     req.Name,
		Body:     req.Body,
		Hashtags: req.Hashtags,
		IsActive: true,
	}
	if card.Hashtags == nil {
		card.Hashtags = []string{}
	}

	if err := h.cards.Create(r.Context(), card); err != nil {
		writeDomainError(w, err)
		return
	}

	response.Created(w, card)
}

// GetCard returns a single card by ID.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	if cardID == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	card, err := h.cards.Get(r.Context(), cardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.Success(w, card)
}

// ListCards returns all cards of a tenant.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		response.BadRequest(w, errors.New("tenant_id is required"))
		return
	}

	cards, err := h.cards.List(r.Context(), tenantID)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}

	response.Success(w, cards)
}

// UpdateCard updates an existing card.
func (h *CardHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	if cardID == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	var req UpdateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if err := validateCard(req.Name, req.Hashtags); err != nil {
		response.BadRequest(w, err)
		return
	}

	card, err := h.cards.Get(r.Context(), cardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	card.Name = req.Name
	card.Body = req.Body
	card.Hashtags = req.Hashtags
	if card.Hashtags == nil {
		card.Hashtags = []string{}
	}
	if req.IsActive != nil {
		card.IsActive = *req.IsActive
	}

	if err := h.cards.Update(r.Context(), card); err != nil {
		writeDomainError(w, err)
		return
	}

	response.Success(w, card)
}

// DeleteCard soft-deletes a card: it stops appearing in decks and
// child sets but stays referencable from recorded plays.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	if cardID == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	if err := h.cards.SoftDelete(r.Context(), cardID); err != nil {
		writeDomainError(w, err)
		return
	}

	response.NoContent(w)
}
