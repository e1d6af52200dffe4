package app

import (
	"sync"

	"media-quiz-service/internal/domain"
)

// Event is pushed to every subscriber of a session after a change.
type Event struct {
	Type    string      `json:"type"`
	View    domain.View `json:"view,omitempty"`
	Draft   *DraftView  `json:"draft,omitempty"`
	Quiz    *QuizView   `json:"quiz,omitempty"`
	Answer  *AnswerView `json:"answer,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Event types. A state event is the snapshot sent on subscribe.
const (
	EventState    = "state"
	EventDraft    = "draft"
	EventQuiz     = "quiz"
	EventAnswer   = "answer"
	EventNavigate = "navigate"
)

// Hub fans events out to the sockets attached to each session.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a channel for sessionID and queues initial on it. The
// caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(sessionID string, initial Event) (<-chan Event, func()) {
	ch := make(chan Event, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[sessionID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
	return ch, cancel
}

// Publish never blocks: a subscriber that fell behind loses its oldest event.
func (h *Hub) Publish(sessionID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[sessionID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports how many channels are attached to sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sessionID])
}
