package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"media-quiz-service/internal/app"
	"media-quiz-service/internal/domain"
	"media-quiz-service/internal/metrics"
)

var (
	errUnsupportedMessage = errors.New("unsupported message type")
	errInvalidPayload     = errors.New("invalid payload")
)

// WSHandler streams session events to a tab and accepts playback reports
// from its player.
type WSHandler struct {
	service  *app.QuizService
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type labelPayload struct {
	Label  string `json:"label"`
	Reason string `json:"reason,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and attaches the socket to one session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	ctx := r.Context()
	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		for _, msg := range errorMessages(err) {
			_ = conn.WriteJSON(msg)
		}
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Str("session", sessionID).Msg("ws write failed")
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	h.readLoop(ctx, conn, sessionID, send, writerDone)

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// readLoop dispatches inbound reports until the socket closes or the writer
// gives up. It never blocks on a writer that has already exited.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, send chan<- outboundMessage[any], writerDone <-chan struct{}) {
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		var out []outboundMessage[any]
		reply, err := h.dispatch(ctx, sessionID, inbound)
		switch {
		case err != nil:
			out = errorMessages(err)
		case reply != nil:
			out = append(out, *reply)
		}
		for _, msg := range out {
			select {
			case send <- msg:
			case <-writerDone:
				return
			}
		}
	}
}

// dispatch runs one inbound report. State changes reach the tab through the
// hub; only replies that are not broadcast are returned here.
func (h *WSHandler) dispatch(ctx context.Context, id string, msg inboundMessage) (*outboundMessage[any], error) {
	var p labelPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, errInvalidPayload
		}
	}

	var err error
	switch msg.Type {
	case "ended":
		err = withLabel(p, func(l domain.Label) error {
			_, err := h.service.PlaybackEnded(ctx, id, l)
			return err
		})
	case "next":
		_, err = h.service.PlaybackNext(ctx, id)
	case "error":
		err = withLabel(p, func(l domain.Label) error {
			_, err := h.service.PlaybackFailed(ctx, id, l, p.Reason)
			return err
		})
	case "retry":
		_, err = h.service.PlaybackRetry(ctx, id)
	case "replay":
		err = withLabel(p, func(l domain.Label) error {
			_, err := h.service.Replay(ctx, id, l)
			return err
		})
	case "replayEnded":
		err = withLabel(p, func(l domain.Label) error {
			_, err := h.service.ReplayEnded(ctx, id, l)
			return err
		})
	case "proceed":
		_, err = h.service.ProceedToAnswer(ctx, id)
	case "answer":
		err = withLabel(p, func(l domain.Label) error {
			_, err := h.service.Choose(ctx, id, l)
			return err
		})
	case "back":
		var view domain.View
		view, err = h.service.Back(ctx, id)
		if err == nil && view == domain.ViewAnswer {
			return &outboundMessage[any]{
				Type:    app.EventNavigate,
				Payload: app.Event{Type: app.EventNavigate, View: view},
			}, nil
		}
	default:
		return nil, errUnsupportedMessage
	}
	return nil, err
}

func withLabel(p labelPayload, fn func(domain.Label) error) error {
	label, err := domain.ParseLabel(p.Label)
	if err != nil {
		return err
	}
	return fn(label)
}

// errorMessages renders err for the socket. A missing session also sends the
// tab back to setup.
func errorMessages(err error) []outboundMessage[any] {
	status, redirect := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if redirect == "" {
		return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Message: msg}}}
	}
	return []outboundMessage[any]{
		{Type: "error", Payload: errorPayload{Message: "No quiz in progress: " + msg}},
		{Type: app.EventNavigate, Payload: app.Event{Type: app.EventNavigate, View: domain.ViewSetup}},
	}
}
