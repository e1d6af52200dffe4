package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"media-quiz-service/internal/domain"
	"media-quiz-service/internal/media"
)

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// classify maps a use-case error to a status code. Errors that mean the tab
// has no usable session also carry a redirect to the setup page.
func classify(err error) (status int, redirect string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSessionCorrupt),
		errors.Is(err, domain.ErrDraftNotFound):
		return http.StatusConflict, "/"
	case errors.Is(err, domain.ErrIncompleteIntake),
		errors.Is(err, domain.ErrNoCorrectLabel):
		return http.StatusUnprocessableEntity, ""
	case errors.Is(err, domain.ErrInvalidLabel),
		errors.Is(err, errUnsupportedMessage),
		errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest, ""
	case errors.Is(err, domain.ErrNotAllPlayed),
		errors.Is(err, domain.ErrWrongPhase),
		errors.Is(err, domain.ErrAlreadyAnswered):
		return http.StatusConflict, ""
	case errors.Is(err, domain.ErrNoThumbnail),
		errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, media.ErrTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status, redirect := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	if redirect != "" {
		msg = "No quiz in progress: " + msg
	}
	writeJSON(w, status, errorResponse{Error: msg, Redirect: redirect})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
