// Package handlers contains the HTTP handlers of the API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/narimato/narimato/internal/api/response"
	"github.com/narimato/narimato/internal/deck"
	"github.com/narimato/narimato/internal/play"
	"github.com/narimato/narimato/internal/rating"
	"github.com/narimato/narimato/internal/storage/repository"
)

// writeDomainError maps engine errors onto HTTP statuses. Validation
// failures are 400 and must not be retried; conflicts are 409 and safe
// to retry after a re-read; expiry is 410 and terminal.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, play.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		response.NotFound(w, err)
	case errors.Is(err, play.ErrExpired):
		response.Gone(w, err)
	case errors.Is(err, play.ErrConcurrentModification),
		errors.Is(err, rating.ErrAlreadyRunning),
		errors.Is(err, repository.ErrDuplicateName):
		response.Conflict(w, err)
	case errors.Is(err, play.ErrWrongState),
		errors.Is(err, play.ErrCardMismatch),
		errors.Is(err, play.ErrPairMismatch),
		errors.Is(err, play.ErrInvalidWinner),
		errors.Is(err, play.ErrInvalidDirection),
		errors.Is(err, play.ErrDuplicateInput),
		errors.Is(err, play.ErrNotChildPlay),
		errors.Is(err, deck.ErrDeckTooSmall):
		response.BadRequest(w, err)
	default:
		response.InternalError(w, err)
	}
}
