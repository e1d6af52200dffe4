package app

import (
	"context"
	"fmt"

	"media-quiz-service/internal/domain"
)

// ReplayController serves free replay: any item, by label, any number of
// times. Entering it never clears a played flag.
type ReplayController struct {
	sc *SessionContext
}

func NewReplayController(sc *SessionContext) *ReplayController {
	return &ReplayController{sc: sc}
}

// PlayByLabel starts an item from the beginning. The play cursor is untouched.
func (c *ReplayController) PlayByLabel(ctx context.Context, label domain.Label) (QuizView, error) {
	if !label.Valid() {
		return QuizView{}, domain.ErrInvalidLabel
	}
	session, err := c.sc.Load(ctx)
	if err != nil {
		return QuizView{}, err
	}
	if !session.InFreeReplay() {
		return QuizView{}, domain.ErrWrongPhase
	}
	v := renderQuiz(session, false)
	v.NowPlaying = label
	v.Status = fmt.Sprintf("Playing %s (free replay)", label)
	return v, nil
}

// MediaEnded marks a replayed item as played. Repeats are harmless.
func (c *ReplayController) MediaEnded(ctx context.Context, label domain.Label) (QuizView, error) {
	if !label.Valid() {
		return QuizView{}, domain.ErrInvalidLabel
	}
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if !s.InFreeReplay() {
			return domain.ErrWrongPhase
		}
		s.MarkPlayed(label)
		return nil
	})
	if err != nil {
		return QuizView{}, err
	}
	return renderQuiz(session, false), nil
}

// ProceedToAnswer gates the answer stage on every item having been played.
func (c *ReplayController) ProceedToAnswer(ctx context.Context) error {
	_, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if !s.AllPlayed() {
			return fmt.Errorf("%w (%d/%d played)", domain.ErrNotAllPlayed, s.PlayedCount(), domain.SlotCount)
		}
		s.ReachedAnswer = true
		return nil
	})
	return err
}
