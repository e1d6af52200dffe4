package app

import (
	"context"
	"fmt"

	"media-quiz-service/internal/domain"
	"media-quiz-service/internal/metrics"
)

// AnswerController is the Unanswered -> Locked state machine.
type AnswerController struct {
	sc *SessionContext
}

func NewAnswerController(sc *SessionContext) *AnswerController {
	return &AnswerController{sc: sc}
}

// Enter renders the answer page; it requires every item to have been played.
// Entering counts as reaching the answer stage.
func (c *AnswerController) Enter(ctx context.Context) (AnswerView, error) {
	session, err := c.sc.Load(ctx)
	if err != nil {
		return AnswerView{}, err
	}
	if !session.AllPlayed() {
		return AnswerView{}, domain.ErrNotAllPlayed
	}
	if !session.ReachedAnswer {
		session, err = c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
			if !s.AllPlayed() {
				return domain.ErrNotAllPlayed
			}
			s.ReachedAnswer = true
			return nil
		})
		if err != nil {
			return AnswerView{}, err
		}
	}
	return renderAnswer(session), nil
}

// Choose locks label in as the answer. Once locked, further choices leave
// the session untouched and return the locked view.
func (c *AnswerController) Choose(ctx context.Context, label domain.Label) (AnswerView, error) {
	if !label.Valid() {
		return AnswerView{}, domain.ErrInvalidLabel
	}
	locked := false
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if s.Answered {
			return nil
		}
		if !s.AllPlayed() {
			return domain.ErrNotAllPlayed
		}
		s.Answered = true
		s.ChosenLabel = label
		s.ReachedAnswer = true
		s.ReturnedFromAnswer = false
		locked = true
		return nil
	})
	if err != nil {
		return AnswerView{}, err
	}
	if locked {
		outcome := "wrong"
		if session.ChosenLabel == session.CorrectLabel {
			outcome = "correct"
		}
		metrics.AnswersLocked.WithLabelValues(outcome).Inc()
	}
	return renderAnswer(session), nil
}

// Back returns to free replay while unanswered. After locking it is a no-op
// and the caller stays on the answer view. It is refused until the answer
// stage has been reached.
func (c *AnswerController) Back(ctx context.Context) (domain.View, error) {
	session, err := c.sc.Mutate(ctx, func(s *domain.QuizSession) error {
		if s.Answered {
			return nil
		}
		if !s.ReachedAnswer {
			return fmt.Errorf("%w: the answer page was never reached", domain.ErrWrongPhase)
		}
		s.ReturnedFromAnswer = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if session.Answered {
		return domain.ViewAnswer, nil
	}
	return domain.ViewQuiz, nil
}
