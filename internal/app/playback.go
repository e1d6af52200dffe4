package app

import (
	"context"
	"fmt"

	"media-quiz-service/internal/domain"
)

// PlaybackController drives the mandatory pass: every item once, in the
// shuffled order, advancing on natural end.
type PlaybackController struct {
	sc *SessionContext
}

func NewPlaybackController(sc *SessionContext) *PlaybackController {
	return &PlaybackController{sc: sc}
}

// Enter renders the quiz view. A pending returned-from-answer signal is
// consumed here and forces free replay for this render.
func (c *PlaybackController) Enter(ctx context.Context) (QuizView, error) {
	returned := false
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		returned = s.ReturnedFromAnswer
		s.ReturnedFromAnswer = false
		return nil
	})
	if err != nil {
		return QuizView{}, err
	}
	return renderQuiz(session, returned), nil
}

// MediaEnded handles natural end of the item under the cursor: it is marked
// played and the cursor advances; after the fourth item the view switches to
// free replay.
func (c *PlaybackController) MediaEnded(ctx context.Context, label domain.Label) (QuizView, error) {
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if err := requireCurrent(s, label); err != nil {
			return err
		}
		s.MarkPlayed(label)
		s.PlayCursor++
		s.LastError = ""
		return nil
	})
	if err != nil {
		return QuizView{}, err
	}
	return renderQuiz(session, false), nil
}

// Next skips to the following item without marking the current one played.
func (c *PlaybackController) Next(ctx context.Context) (QuizView, error) {
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if s.InFreeReplay() {
			return domain.ErrWrongPhase
		}
		s.PlayCursor++
		s.LastError = ""
		return nil
	})
	if err != nil {
		return QuizView{}, err
	}
	return renderQuiz(session, false), nil
}

// PlaybackFailed parks the controller on the current item. Nothing is
// retried until the user asks for it.
func (c *PlaybackController) PlaybackFailed(ctx context.Context, label domain.Label, reason string) (QuizView, error) {
	if reason == "" {
		reason = "playback failed"
	}
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if err := requireCurrent(s, label); err != nil {
			return err
		}
		s.LastError = fmt.Sprintf("%s: %s", label, reason)
		return nil
	})
	if err != nil {
		return QuizView{}, err
	}
	return renderQuiz(session, false), nil
}

// Retry clears a parked playback error so the client can start the current
// item again.
func (c *PlaybackController) Retry(ctx context.Context) (QuizView, error) {
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if s.InFreeReplay() {
			return domain.ErrWrongPhase
		}
		s.LastError = ""
		return nil
	})
	if err != nil {
		return QuizView{}, err
	}
	return renderQuiz(session, false), nil
}

func requireCurrent(s *domain.QuizSession, label domain.Label) error {
	if s.InFreeReplay() {
		return domain.ErrWrongPhase
	}
	if current := s.CurrentLabel(); label != current {
		return fmt.Errorf("%w: %s is not the current item (%s)", domain.ErrWrongPhase, label, current)
	}
	return nil
}
