package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/narimato/narimato/internal/api/handlers"
	"github.com/narimato/narimato/internal/api/response"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Play routes
		playHandler := handlers.NewPlayHandler(s.playService)
		r.Route("/plays", func(r chi.Router) {
			r.Post("/", playHandler.StartPlay)
			r.Get("/{playID}", playHandler.GetPlay)
			r.Post("/{playID}/swipes", playHandler.Swipe)
			r.Post("/{playID}/votes", playHandler.Vote)
			r.Post("/{playID}/complete-hierarchical", playHandler.CompleteHierarchical)
		})

		// Card routes
		cardHandler := handlers.NewCardHandler(s.cards)
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", cardHandler.ListCards)
			r.Post("/", cardHandler.CreateCard)
			r.Get("/{cardID}", cardHandler.GetCard)
			r.Put("/{cardID}", cardHandler.UpdateCard)
			r.Delete("/{cardID}", cardHandler.DeleteCard)
		})

		// Ranking routes
		rankingHandler := handlers.NewRankingHandler(s.aggregator, s.resolver)
		r.Route("/rankings", func(r chi.Router) {
			r.Get("/{deckTag}", rankingHandler.GetLeaderboard)
			r.Post("/recompute", rankingHandler.Recompute)
		})
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "narimato-api",
	})
}
