package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"media-quiz-service/internal/app"
	"media-quiz-service/internal/domain"
)

// multipartSlack leaves room for part headers around the file itself.
const multipartSlack = 64 << 10

// Handler exposes the quiz use cases as JSON endpoints.
type Handler struct {
	service        *app.QuizService
	logger         zerolog.Logger
	maxUploadBytes int64
}

type startRequest struct {
	CorrectLabel string `json:"correctLabel"`
}

type labelRequest struct {
	Label  string `json:"label"`
	Reason string `json:"reason,omitempty"`
}

type backResponse struct {
	View domain.View `json:"view"`
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.service.NewDraft())
}

func (h *Handler) draft(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Draft(chi.URLParam(r, "id"))
	h.respond(w, v, err)
}

func (h *Handler) selectFile(w http.ResponseWriter, r *http.Request) {
	label, ok := h.label(w, r)
	if !ok {
		return
	}
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartSlack)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected a multipart upload"})
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file"})
			return
		}
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if part.FormName() != "file" {
			continue
		}
		v, err := h.service.SelectFile(r.Context(), chi.URLParam(r, "id"), label, app.FileUpload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		h.respond(w, v, err)
		return
	}
}

func (h *Handler) clearSlot(w http.ResponseWriter, r *http.Request) {
	label, ok := h.label(w, r)
	if !ok {
		return
	}
	v, err := h.service.ClearSlot(r.Context(), chi.URLParam(r, "id"), label)
	h.respond(w, v, err)
}

func (h *Handler) thumbnail(w http.ResponseWriter, r *http.Request) {
	label, ok := h.label(w, r)
	if !ok {
		return
	}
	thumb, err := h.service.Thumbnail(r.Context(), chi.URLParam(r, "id"), label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(thumb)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.service.StartQuiz(r.Context(), chi.URLParam(r, "id"), req.CorrectLabel)
	h.respond(w, v, err)
}

func (h *Handler) enterQuiz(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.EnterQuiz(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, v, err)
}

func (h *Handler) playbackEnded(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if !h.decode(w, r, &req) {
		return
	}
	label, err := domain.ParseLabel(req.Label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.service.PlaybackEnded(r.Context(), chi.URLParam(r, "id"), label)
	h.respond(w, v, err)
}

func (h *Handler) playbackNext(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.PlaybackNext(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, v, err)
}

func (h *Handler) playbackError(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if !h.decode(w, r, &req) {
		return
	}
	label, err := domain.ParseLabel(req.Label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.service.PlaybackFailed(r.Context(), chi.URLParam(r, "id"), label, req.Reason)
	h.respond(w, v, err)
}

func (h *Handler) playbackRetry(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.PlaybackRetry(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, v, err)
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request) {
	label, ok := h.label(w, r)
	if !ok {
		return
	}
	v, err := h.service.Replay(r.Context(), chi.URLParam(r, "id"), label)
	h.respond(w, v, err)
}

func (h *Handler) replayEnded(w http.ResponseWriter, r *http.Request) {
	label, ok := h.label(w, r)
	if !ok {
		return
	}
	v, err := h.service.ReplayEnded(r.Context(), chi.URLParam(r, "id"), label)
	h.respond(w, v, err)
}

func (h *Handler) proceed(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.ProceedToAnswer(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, v, err)
}

func (h *Handler) enterAnswer(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.EnterAnswer(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, v, err)
}

func (h *Handler) choose(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if !h.decode(w, r, &req) {
		return
	}
	label, err := domain.ParseLabel(req.Label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.service.Choose(r.Context(), chi.URLParam(r, "id"), label)
	h.respond(w, v, err)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Back(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, backResponse{View: view}, err)
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Restart(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// media streams a stored file with range support so the player can seek.
func (h *Handler) media(w http.ResponseWriter, r *http.Request) {
	label, ok := h.label(w, r)
	if !ok {
		return
	}
	f, err := h.service.OpenMedia(r.Context(), chi.URLParam(r, "id"), label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer f.Close()
	if ct := f.ContentType(); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, "", time.Time{}, f)
}

func (h *Handler) label(w http.ResponseWriter, r *http.Request) (domain.Label, bool) {
	label, err := domain.ParseLabel(chi.URLParam(r, "label"))
	if err != nil {
		writeError(w, h.logger, err)
		return "", false
	}
	return label, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
