package app

import (
	"context"

	"media-quiz-service/internal/domain"
)

// SessionRepository abstracts how session records are stored (in-memory, Redis, etc).
// Update must apply fn atomically: either the whole modified record is
// written or nothing is, and fn always sees a complete record.
type SessionRepository interface {
	Create(ctx context.Context, session domain.QuizSession) error
	Get(ctx context.Context, id string) (domain.QuizSession, error)
	Update(ctx context.Context, id string, fn func(*domain.QuizSession) error) (domain.QuizSession, error)
	Delete(ctx context.Context, id string) error
}

// SessionContext is the handle every controller is built with. It is the
// only way controllers read or write the session record.
type SessionContext struct {
	id   string
	repo SessionRepository
}

func NewSessionContext(id string, repo SessionRepository) *SessionContext {
	return &SessionContext{id: id, repo: repo}
}

func (c *SessionContext) ID() string { return c.id }

// Load returns a validated copy of the session record.
func (c *SessionContext) Load(ctx context.Context) (domain.QuizSession, error) {
	session, err := c.repo.Get(ctx, c.id)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if err := session.Validate(); err != nil {
		return domain.QuizSession{}, err
	}
	return session, nil
}

// Mutate validates the stored record, then applies fn as one atomic update.
// If fn returns an error nothing is written.
func (c *SessionContext) Mutate(ctx context.Context, fn func(*domain.QuizSession) error) (domain.QuizSession, error) {
	return c.repo.Update(ctx, c.id, func(session *domain.QuizSession) error {
		if err := session.Validate(); err != nil {
			return err
		}
		return fn(session)
	})
}
