package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"media-quiz-service/internal/app"
	"media-quiz-service/internal/domain"
)

func startQuiz(t *testing.T, service *app.QuizService) string {
	t.Helper()
	ctx := context.Background()
	id := service.NewDraft().ID
	for _, l := range domain.Labels {
		_, err := service.SelectFile(ctx, id, l, app.FileUpload{
			Filename:    string(l) + ".mp3",
			ContentType: "audio/mpeg",
			Body:        strings.NewReader("sound-" + string(l)),
		})
		if err != nil {
			t.Fatalf("select %s: %v", l, err)
		}
	}
	if _, err := service.StartQuiz(ctx, id, "D"); err != nil {
		t.Fatalf("start: %v", err)
	}
	return id
}

func dial(t *testing.T, serverURL, sessionID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws?sessionId=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketPlaybackFlow(t *testing.T) {
	server, service := newTestServer(t, 0)
	id := startQuiz(t, service)
	conn := dial(t, server.URL, id)

	var state app.Event
	readNext(t, conn, app.EventState, &state)
	if state.Quiz == nil || state.Quiz.CurrentLabel != domain.LabelC {
		t.Fatalf("expected snapshot playing C, got %+v", state.Quiz)
	}

	send(t, conn, "ended", map[string]string{"label": "C"})
	var ev app.Event
	readNext(t, conn, app.EventQuiz, &ev)
	if ev.Quiz.PlayedCount != 1 || ev.Quiz.CurrentLabel != domain.LabelA {
		t.Fatalf("expected A next with 1 played, got %+v", ev.Quiz)
	}

	// A stale report for the item that already ended is refused.
	send(t, conn, "ended", map[string]string{"label": "C"})
	var errMsg errorPayload
	readNext(t, conn, "error", &errMsg)
	if errMsg.Message == "" {
		t.Fatalf("expected an error message")
	}

	send(t, conn, "answer", map[string]string{"label": "A"})
	readNext(t, conn, "error", &errMsg)
	if errMsg.Message != domain.ErrNotAllPlayed.Error() {
		t.Fatalf("expected not-all-played error, got %q", errMsg.Message)
	}

	send(t, conn, "shout", nil)
	readNext(t, conn, "error", &errMsg)
	if errMsg.Message != errUnsupportedMessage.Error() {
		t.Fatalf("expected unsupported message error, got %q", errMsg.Message)
	}
}

func TestWebSocketBackAfterLockStaysOnAnswer(t *testing.T) {
	server, service := newTestServer(t, 0)
	id := startQuiz(t, service)
	ctx := context.Background()
	for _, l := range []domain.Label{domain.LabelC, domain.LabelA, domain.LabelD, domain.LabelB} {
		if _, err := service.PlaybackEnded(ctx, id, l); err != nil {
			t.Fatalf("ended %s: %v", l, err)
		}
	}
	if _, err := service.ProceedToAnswer(ctx, id); err != nil {
		t.Fatalf("proceed: %v", err)
	}

	conn := dial(t, server.URL, id)
	readNext(t, conn, app.EventState, nil)

	send(t, conn, "answer", map[string]string{"label": "D"})
	var ev app.Event
	readNext(t, conn, app.EventAnswer, &ev)
	if !ev.Answer.Answered || !ev.Answer.Correct {
		t.Fatalf("expected a locked correct answer, got %+v", ev.Answer)
	}

	send(t, conn, "back", nil)
	readNext(t, conn, app.EventNavigate, &ev)
	if ev.View != domain.ViewAnswer {
		t.Fatalf("expected to stay on answer, got %q", ev.View)
	}
}

func TestWebSocketUnknownSessionRedirects(t *testing.T) {
	server, _ := newTestServer(t, 0)
	conn := dial(t, server.URL, "no-such-session")

	var errMsg errorPayload
	readNext(t, conn, "error", &errMsg)
	if !strings.HasPrefix(errMsg.Message, "No quiz in progress") {
		t.Fatalf("unexpected message %q", errMsg.Message)
	}
	var ev app.Event
	readNext(t, conn, app.EventNavigate, &ev)
	if ev.View != domain.ViewSetup {
		t.Fatalf("expected navigate to setup, got %q", ev.View)
	}
}

func TestWebSocketRequiresSessionID(t *testing.T) {
	server, _ := newTestServer(t, 0)
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, res, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if res == nil || res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", res)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string, payload any) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%s)", expect, msg.Type, msg.Payload)
	}
	if payload != nil {
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			t.Fatalf("decode %s payload: %v", expect, err)
		}
	}
}

func TestReadLoopStopsWhenWriterExits(t *testing.T) {
	h := NewWSHandler(nil, zerolog.Nop())
	returned := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Nobody drains send and the writer is already gone.
		out := make(chan outboundMessage[any])
		writerDone := make(chan struct{})
		close(writerDone)
		h.readLoop(r.Context(), conn, "s1", out, writerDone)
		close(returned)
	}))
	t.Cleanup(server.Close)

	conn := dial(t, server.URL, "s1")
	send(t, conn, "shout", nil)

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatalf("read loop blocked on a writer that had exited")
	}
}
