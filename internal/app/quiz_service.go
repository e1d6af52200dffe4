package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"media-quiz-service/internal/domain"
	"media-quiz-service/internal/media"
	"media-quiz-service/internal/metrics"
)

// QuizService contains the quiz use cases. Every call names the session (the
// browser tab) it acts on; controllers are built per call around a
// SessionContext, so no state is held between requests except in the
// repository and the intake drafts.
type QuizService struct {
	sessions SessionRepository
	intake   *IntakeService
	media    media.Store
	hub      *Hub
	logger   zerolog.Logger
}

func NewQuizService(sessions SessionRepository, intake *IntakeService, store media.Store, logger zerolog.Logger) *QuizService {
	return &QuizService{
		sessions: sessions,
		intake:   intake,
		media:    store,
		hub:      NewHub(),
		logger:   logger,
	}
}

func (s *QuizService) playback(id string) *PlaybackController {
	return NewPlaybackController(NewSessionContext(id, s.sessions))
}

func (s *QuizService) replay(id string) *ReplayController {
	return NewReplayController(NewSessionContext(id, s.sessions))
}

func (s *QuizService) answer(id string) *AnswerController {
	return NewAnswerController(NewSessionContext(id, s.sessions))
}

// NewDraft opens a fresh setup screen for a new tab.
func (s *QuizService) NewDraft() DraftView {
	return s.intake.NewDraft()
}

func (s *QuizService) Draft(id string) (DraftView, error) {
	return s.intake.Draft(id)
}

// SelectFile stores a file for a label on the setup screen.
func (s *QuizService) SelectFile(ctx context.Context, id string, label domain.Label, upload FileUpload) (DraftView, error) {
	v, err := s.intake.SelectFile(ctx, id, label, upload)
	if err != nil {
		return DraftView{}, err
	}
	s.hub.Publish(id, Event{Type: EventDraft, Draft: &v})
	return v, nil
}

func (s *QuizService) ClearSlot(ctx context.Context, id string, label domain.Label) (DraftView, error) {
	v, err := s.intake.ClearSlot(ctx, id, label)
	if err != nil {
		return DraftView{}, err
	}
	s.hub.Publish(id, Event{Type: EventDraft, Draft: &v})
	return v, nil
}

// StartQuiz completes intake and enters sequential playback.
func (s *QuizService) StartQuiz(ctx context.Context, id, correctLabel string) (QuizView, error) {
	session, err := s.intake.Complete(ctx, id, correctLabel)
	if err != nil {
		return QuizView{}, err
	}
	v := renderQuiz(session, false)
	s.hub.Publish(id, Event{Type: EventNavigate, View: domain.ViewQuiz})
	return v, nil
}

// EnterQuiz renders the quiz page, consuming a pending return from the
// answer page.
func (s *QuizService) EnterQuiz(ctx context.Context, id string) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.playback(id).Enter(ctx) })
}

func (s *QuizService) PlaybackEnded(ctx context.Context, id string, label domain.Label) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.playback(id).MediaEnded(ctx, label) })
}

func (s *QuizService) PlaybackNext(ctx context.Context, id string) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.playback(id).Next(ctx) })
}

func (s *QuizService) PlaybackFailed(ctx context.Context, id string, label domain.Label, reason string) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.playback(id).PlaybackFailed(ctx, label, reason) })
}

func (s *QuizService) PlaybackRetry(ctx context.Context, id string) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.playback(id).Retry(ctx) })
}

// Replay starts any item again in free replay.
func (s *QuizService) Replay(ctx context.Context, id string, label domain.Label) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.replay(id).PlayByLabel(ctx, label) })
}

func (s *QuizService) ReplayEnded(ctx context.Context, id string, label domain.Label) (QuizView, error) {
	return s.quizOp(id, func() (QuizView, error) { return s.replay(id).MediaEnded(ctx, label) })
}

// ProceedToAnswer moves to the answer page once every item was played.
func (s *QuizService) ProceedToAnswer(ctx context.Context, id string) (AnswerView, error) {
	if err := s.replay(id).ProceedToAnswer(ctx); err != nil {
		return AnswerView{}, err
	}
	v, err := s.answer(id).Enter(ctx)
	if err != nil {
		return AnswerView{}, err
	}
	s.hub.Publish(id, Event{Type: EventNavigate, View: domain.ViewAnswer})
	return v, nil
}

func (s *QuizService) EnterAnswer(ctx context.Context, id string) (AnswerView, error) {
	return s.answer(id).Enter(ctx)
}

// Choose locks in an answer. Only the first choice counts.
func (s *QuizService) Choose(ctx context.Context, id string, label domain.Label) (AnswerView, error) {
	v, err := s.answer(id).Choose(ctx, label)
	if err != nil {
		return AnswerView{}, err
	}
	s.hub.Publish(id, Event{Type: EventAnswer, Answer: &v})
	return v, nil
}

// Back leaves the answer page for free replay. It returns the view the tab
// should show, which stays the answer page once an answer is locked.
func (s *QuizService) Back(ctx context.Context, id string) (domain.View, error) {
	view, err := s.answer(id).Back(ctx)
	if err != nil {
		return "", err
	}
	if view == domain.ViewQuiz {
		s.hub.Publish(id, Event{Type: EventNavigate, View: view})
	}
	return view, nil
}

// Restart destroys the session or draft and its media. It is safe to call
// for an unknown id.
func (s *QuizService) Restart(ctx context.Context, id string) error {
	discarded := s.intake.Discard(id)
	err := s.sessions.Delete(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.media.DeletePrefix(ctx, id+"/"); err != nil {
		s.logger.Warn().Err(err).Str("session", id).Msg("failed to delete session media")
	}
	if err == nil || discarded {
		metrics.SessionsRestarted.Inc()
	}
	s.hub.Publish(id, Event{Type: EventNavigate, View: domain.ViewSetup})
	s.logger.Info().Str("session", id).Msg("session restarted")
	return nil
}

// OpenMedia opens the stored file for a label of a started session.
func (s *QuizService) OpenMedia(ctx context.Context, id string, label domain.Label) (media.File, error) {
	slot, err := s.slot(ctx, id, label)
	if err != nil {
		return nil, err
	}
	return s.media.Open(ctx, slot.SourceRef)
}

// Thumbnail returns the preview for a label, from the draft while on the
// setup screen and from the frozen session record afterwards.
func (s *QuizService) Thumbnail(ctx context.Context, id string, label domain.Label) ([]byte, error) {
	thumb, err := s.intake.DraftThumbnail(id, label)
	if !errors.Is(err, domain.ErrDraftNotFound) {
		return thumb, err
	}
	slot, err := s.slot(ctx, id, label)
	if err != nil {
		return nil, err
	}
	if !slot.HasThumbnail() {
		return nil, domain.ErrNoThumbnail
	}
	return slot.Thumbnail, nil
}

// Subscribe returns a channel that receives events for a session or draft,
// starting with its current state. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, id string) (<-chan Event, func(), error) {
	initial, err := s.snapshot(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(id, initial)
	return ch, cancel, nil
}

// Close stops background work owned by the service.
func (s *QuizService) Close() {
	s.intake.Close()
}

func (s *QuizService) snapshot(ctx context.Context, id string) (Event, error) {
	if draft, err := s.intake.Draft(id); err == nil {
		return Event{Type: EventState, View: domain.ViewSetup, Draft: &draft}, nil
	}
	session, err := NewSessionContext(id, s.sessions).Load(ctx)
	if err != nil {
		return Event{}, err
	}
	quiz := renderQuiz(session, false)
	ev := Event{Type: EventState, View: domain.ViewQuiz, Quiz: &quiz}
	if session.AllPlayed() {
		answer := renderAnswer(session)
		ev.Answer = &answer
	}
	return ev, nil
}

func (s *QuizService) slot(ctx context.Context, id string, label domain.Label) (domain.MediaSlot, error) {
	if !label.Valid() {
		return domain.MediaSlot{}, domain.ErrInvalidLabel
	}
	session, err := NewSessionContext(id, s.sessions).Load(ctx)
	if err != nil {
		return domain.MediaSlot{}, err
	}
	return *session.Slot(label), nil
}

func (s *QuizService) quizOp(id string, op func() (QuizView, error)) (QuizView, error) {
	v, err := op()
	if err != nil {
		return QuizView{}, err
	}
	s.hub.Publish(id, Event{Type: EventQuiz, Quiz: &v})
	return v, nil
}
