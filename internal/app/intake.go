package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"media-quiz-service/internal/domain"
	"media-quiz-service/internal/media"
	"media-quiz-service/internal/metrics"
	"media-quiz-service/internal/thumbnail"
)

// ThumbnailCapturer produces a still for a local video file.
type ThumbnailCapturer interface {
	Capture(ctx context.Context, path string) (thumbnail.Result, error)
}

// FileUpload is one file chosen for a slot on the setup screen.
type FileUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// DraftSlotView is a slot as shown on the setup screen.
type DraftSlotView struct {
	Label        domain.Label     `json:"label"`
	Selected     bool             `json:"selected"`
	Filename     string           `json:"filename,omitempty"`
	Kind         domain.MediaKind `json:"kind,omitempty"`
	Capturing    bool             `json:"capturing"`
	HasThumbnail bool             `json:"hasThumbnail"`
}

// DraftView is the setup screen state. Ready means every label has a file.
type DraftView struct {
	ID    string          `json:"id"`
	Slots []DraftSlotView `json:"slots"`
	Ready bool            `json:"ready"`
}

type draftSlot struct {
	ref         string
	filename    string
	contentType string
	kind        domain.MediaKind
	thumbnail   []byte

	// gen is bumped on every reselect; a capture only lands if it still matches.
	gen     uint64
	cancel  context.CancelFunc
	pending chan struct{}
}

type draft struct {
	id        string
	createdAt time.Time
	slots     [domain.SlotCount]draftSlot
}

// IntakeService collects the four files and the correct label, then creates
// the quiz session. Drafts live in process memory until Complete.
type IntakeService struct {
	media    media.Store
	capturer ThumbnailCapturer
	sessions SessionRepository
	logger   zerolog.Logger

	now            func() time.Time
	newID          func() string
	shuffle        func(n int, swap func(i, j int))
	captureTimeout time.Duration

	baseCtx      context.Context
	stopCaptures context.CancelFunc

	mu     sync.Mutex
	drafts map[string]*draft
}

// IntakeOption customises an IntakeService.
type IntakeOption func(*IntakeService)

// WithShuffle replaces the play order shuffle (tests use a fixed one).
func WithShuffle(shuffle func(n int, swap func(i, j int))) IntakeOption {
	return func(s *IntakeService) { s.shuffle = shuffle }
}

// WithIDGenerator replaces uuid-based draft IDs.
func WithIDGenerator(newID func() string) IntakeOption {
	return func(s *IntakeService) { s.newID = newID }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) IntakeOption {
	return func(s *IntakeService) { s.now = now }
}

// WithCaptureTimeout bounds a whole capture, including fetching the media.
func WithCaptureTimeout(d time.Duration) IntakeOption {
	return func(s *IntakeService) { s.captureTimeout = d }
}

func NewIntakeService(store media.Store, capturer ThumbnailCapturer, sessions SessionRepository, logger zerolog.Logger, opts ...IntakeOption) *IntakeService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &IntakeService{
		media:          store,
		capturer:       capturer,
		sessions:       sessions,
		logger:         logger,
		now:            time.Now,
		newID:          uuid.NewString,
		shuffle:        rand.Shuffle,
		captureTimeout: 20 * time.Second,
		baseCtx:        ctx,
		stopCaptures:   cancel,
		drafts:         make(map[string]*draft),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDraft opens an empty setup screen. Its ID becomes the session ID.
func (s *IntakeService) NewDraft() DraftView {
	d := &draft{id: s.newID(), createdAt: s.now()}
	for i := range d.slots {
		d.slots[i].pending = closedChan()
	}
	s.mu.Lock()
	s.drafts[d.id] = d
	view := d.viewLocked()
	s.mu.Unlock()
	return view
}

// Draft returns the current setup screen state.
func (s *IntakeService) Draft(draftID string) (DraftView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftID]
	if !ok {
		return DraftView{}, domain.ErrDraftNotFound
	}
	return d.viewLocked(), nil
}

// SelectFile (re)fills a slot. Any capture still running for the slot is
// cancelled and its result discarded; video files start a new capture.
func (s *IntakeService) SelectFile(ctx context.Context, draftID string, label domain.Label, upload FileUpload) (DraftView, error) {
	if !label.Valid() {
		return DraftView{}, domain.ErrInvalidLabel
	}

	s.mu.Lock()
	d, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return DraftView{}, domain.ErrDraftNotFound
	}
	slot := &d.slots[label.Index()]
	gen, previous := slot.resetLocked()
	s.mu.Unlock()
	s.deleteMedia(previous)

	key := fmt.Sprintf("%s/%s-%d%s", draftID, label, gen, mediaExt(upload.Filename))
	ref, err := s.media.Put(ctx, key, upload.ContentType, upload.Body)
	if err != nil {
		return DraftView{}, fmt.Errorf("store %s: %w", label, err)
	}

	s.mu.Lock()
	if cur, ok := s.drafts[draftID]; !ok || cur != d || slot.gen != gen {
		// A newer selection or a restart won while the bytes were stored.
		view := d.viewLocked()
		s.mu.Unlock()
		s.deleteMedia(ref)
		if !ok || cur != d {
			return DraftView{}, domain.ErrDraftNotFound
		}
		return view, nil
	}
	defer s.mu.Unlock()

	slot.ref = ref
	slot.filename = upload.Filename
	slot.contentType = upload.ContentType
	slot.kind = domain.ClassifyKind(upload.ContentType)
	if slot.kind == domain.KindVideo && s.capturer != nil {
		s.startCaptureLocked(d.id, label, slot)
	}
	s.logger.Debug().
		Str("draft", draftID).
		Str("label", string(label)).
		Str("kind", string(slot.kind)).
		Msg("file selected")
	return d.viewLocked(), nil
}

// ClearSlot empties a slot, e.g. when the file picker was dismissed.
func (s *IntakeService) ClearSlot(_ context.Context, draftID string, label domain.Label) (DraftView, error) {
	if !label.Valid() {
		return DraftView{}, domain.ErrInvalidLabel
	}
	s.mu.Lock()
	d, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return DraftView{}, domain.ErrDraftNotFound
	}
	_, previous := d.slots[label.Index()].resetLocked()
	view := d.viewLocked()
	s.mu.Unlock()
	s.deleteMedia(previous)
	return view, nil
}

// DraftThumbnail returns the preview captured for a slot so far.
func (s *IntakeService) DraftThumbnail(draftID string, label domain.Label) ([]byte, error) {
	if !label.Valid() {
		return nil, domain.ErrInvalidLabel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftID]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	thumb := d.slots[label.Index()].thumbnail
	if len(thumb) == 0 {
		return nil, domain.ErrNoThumbnail
	}
	return append([]byte(nil), thumb...), nil
}

// Complete validates the draft, waits for running captures, and stores a new
// session with a freshly shuffled play order. The draft is consumed.
func (s *IntakeService) Complete(ctx context.Context, draftID, correct string) (domain.QuizSession, error) {
	s.mu.Lock()
	d, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return domain.QuizSession{}, domain.ErrDraftNotFound
	}
	var missing []string
	for i, slot := range d.slots {
		if slot.ref == "" {
			missing = append(missing, string(domain.Labels[i]))
		}
	}
	if len(missing) > 0 {
		s.mu.Unlock()
		metrics.IntakeRejected.WithLabelValues("incomplete").Inc()
		return domain.QuizSession{}, fmt.Errorf("%w (missing %s)", domain.ErrIncompleteIntake, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(correct) == "" {
		s.mu.Unlock()
		metrics.IntakeRejected.WithLabelValues("no_correct_label").Inc()
		return domain.QuizSession{}, domain.ErrNoCorrectLabel
	}
	correctLabel, err := domain.ParseLabel(correct)
	if err != nil {
		s.mu.Unlock()
		metrics.IntakeRejected.WithLabelValues("invalid_label").Inc()
		return domain.QuizSession{}, err
	}
	waits := make([]chan struct{}, 0, domain.SlotCount)
	for _, slot := range d.slots {
		waits = append(waits, slot.pending)
	}
	s.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return domain.QuizSession{}, ctx.Err()
		}
	}

	s.mu.Lock()
	if cur, ok := s.drafts[draftID]; !ok || cur != d {
		s.mu.Unlock()
		return domain.QuizSession{}, domain.ErrDraftNotFound
	}
	session := domain.QuizSession{
		ID:           d.id,
		CorrectLabel: correctLabel,
		CreatedAt:    s.now(),
	}
	for i, slot := range d.slots {
		if slot.ref == "" {
			s.mu.Unlock()
			return domain.QuizSession{}, fmt.Errorf("%w (missing %s)", domain.ErrIncompleteIntake, domain.Labels[i])
		}
		session.Slots[i] = domain.MediaSlot{
			Label:       domain.Labels[i],
			SourceRef:   slot.ref,
			ContentType: slot.contentType,
			Kind:        slot.kind,
			Thumbnail:   append([]byte(nil), slot.thumbnail...),
		}
	}
	s.mu.Unlock()

	// The correct label is fixed above; the order is drawn only now.
	session.PlayOrder = domain.Labels
	s.shuffle(len(session.PlayOrder), func(i, j int) {
		session.PlayOrder[i], session.PlayOrder[j] = session.PlayOrder[j], session.PlayOrder[i]
	})

	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.QuizSession{}, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	if cur, ok := s.drafts[draftID]; ok && cur == d {
		for i := range d.slots {
			if d.slots[i].cancel != nil {
				d.slots[i].cancel()
			}
		}
		delete(s.drafts, draftID)
	}
	s.mu.Unlock()

	metrics.SessionsCreated.Inc()
	s.logger.Info().
		Str("session", session.ID).
		Str("order", orderString(session.PlayOrder)).
		Msg("quiz session created")
	return session, nil
}

// Discard drops a draft and cancels its captures. Stored media is left to
// the caller. It reports whether a draft existed.
func (s *IntakeService) Discard(draftID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[draftID]
	if !ok {
		return false
	}
	for i := range d.slots {
		d.slots[i].resetLocked()
	}
	delete(s.drafts, draftID)
	return true
}

// SweepDrafts discards drafts older than maxAge together with their media.
func (s *IntakeService) SweepDrafts(ctx context.Context, maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	var stale []string
	s.mu.Lock()
	for id, d := range s.drafts {
		if d.createdAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range stale {
		if !s.Discard(id) {
			continue
		}
		n++
		if err := s.media.DeletePrefix(ctx, id+"/"); err != nil {
			s.logger.Warn().Err(err).Str("draft", id).Msg("failed to delete draft media")
		}
	}
	return n
}

// Close cancels every running capture.
func (s *IntakeService) Close() {
	s.stopCaptures()
}

func (s *IntakeService) startCaptureLocked(draftID string, label domain.Label, slot *draftSlot) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.captureTimeout)
	done := make(chan struct{})
	gen, ref := slot.gen, slot.ref
	slot.cancel = cancel
	slot.pending = done

	go func() {
		defer close(done)
		defer cancel()

		logger := s.logger.With().Str("draft", draftID).Str("label", string(label)).Logger()
		thumb, err := s.capture(ctx, ref)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("thumbnail capture failed")
			}
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if slot.gen != gen {
			return
		}
		slot.thumbnail = thumb
	}()
}

func (s *IntakeService) capture(ctx context.Context, ref string) ([]byte, error) {
	path, release, err := s.media.LocalPath(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer release()
	res, err := s.capturer.Capture(ctx, path)
	if err != nil {
		return nil, err
	}
	return res.JPEG, nil
}

func (s *IntakeService) deleteMedia(ref string) {
	if ref == "" {
		return
	}
	if err := s.media.DeletePrefix(context.Background(), ref); err != nil {
		s.logger.Debug().Err(err).Str("ref", ref).Msg("failed to delete superseded media")
	}
}

// resetLocked cancels any capture and empties the slot. It returns the new
// generation and the reference of the file that was there before.
func (slot *draftSlot) resetLocked() (uint64, string) {
	if slot.cancel != nil {
		slot.cancel()
	}
	previous := slot.ref
	*slot = draftSlot{gen: slot.gen + 1, pending: closedChan()}
	return slot.gen, previous
}

func (d *draft) viewLocked() DraftView {
	v := DraftView{ID: d.id, Slots: make([]DraftSlotView, 0, domain.SlotCount), Ready: true}
	for i, slot := range d.slots {
		sv := DraftSlotView{
			Label:        domain.Labels[i],
			Selected:     slot.ref != "",
			Filename:     slot.filename,
			Kind:         slot.kind,
			HasThumbnail: len(slot.thumbnail) > 0,
		}
		select {
		case <-slot.pending:
		default:
			sv.Capturing = true
		}
		if !sv.Selected {
			v.Ready = false
		}
		v.Slots = append(v.Slots, sv)
	}
	return v
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// mediaExt keeps a short, plain file extension so stored keys stay readable.
// Keys always end in an extension so one key is never a prefix of another.
func mediaExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 8 {
		return ".bin"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".bin"
		}
	}
	return ext
}

func orderString(order [domain.SlotCount]domain.Label) string {
	parts := make([]string, len(order))
	for i, l := range order {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}
