package domain

import (
	"fmt"
	"strings"
	"time"
)

// Label identifies one of the four media slots. Its identity never changes.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelC Label = "C"
	LabelD Label = "D"
)

// SlotCount is the number of labeled slots in every quiz.
const SlotCount = 4

// Labels lists the slots in their fixed display order.
var Labels = [SlotCount]Label{LabelA, LabelB, LabelC, LabelD}

// ParseLabel accepts "A".."D" (case-insensitive).
func ParseLabel(raw string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(raw)))
	if l.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, raw)
	}
	return l, nil
}

// Index returns the slot position of the label, or -1 if it is not a known label.
func (l Label) Index() int {
	for i, known := range Labels {
		if known == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of A..D.
func (l Label) Valid() bool { return l.Index() >= 0 }

// MediaKind is the coarse classification of a selected file.
type MediaKind string

const (
	KindVideo   MediaKind = "video"
	KindAudio   MediaKind = "audio"
	KindUnknown MediaKind = "unknown"
)

// ClassifyKind maps a declared media type to a MediaKind by its top-level prefix.
func ClassifyKind(contentType string) MediaKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return KindAudio
	default:
		return KindUnknown
	}
}

// MediaSlot is one labeled media input and what was derived from it at intake.
type MediaSlot struct {
	Label       Label     `json:"label"`
	SourceRef   string    `json:"sourceRef"`
	ContentType string    `json:"contentType"`
	Kind        MediaKind `json:"kind"`
	Thumbnail   []byte    `json:"thumbnail,omitempty"` // JPEG; absent when capture did not run or failed
}

// HasThumbnail reports whether a still was captured for the slot.
func (s MediaSlot) HasThumbnail() bool { return len(s.Thumbnail) > 0 }

// Mode is the sub-state of the quiz view.
type Mode string

const (
	ModePlaying    Mode = "playing"
	ModeFreeReplay Mode = "free_replay"
)

// View names the navigable pages of the flow.
type View string

const (
	ViewSetup  View = "setup"
	ViewQuiz   View = "quiz"
	ViewAnswer View = "answer"
)

// PlayCursorDone is the cursor value once the mandatory pass is complete.
const PlayCursorDone = SlotCount

// QuizSession is the tab-scoped session record. It is the single source of
// truth for every controller.
type QuizSession struct {
	ID                 string               `json:"id"`
	Slots              [SlotCount]MediaSlot `json:"slots"`
	CorrectLabel       Label                `json:"correctLabel"`
	PlayOrder          [SlotCount]Label     `json:"playOrder"`
	PlayCursor         int                  `json:"playCursor"`
	PlayedFlags        [SlotCount]bool      `json:"playedFlags"`
	Answered           bool                 `json:"answered"`
	ChosenLabel        Label                `json:"chosenLabel,omitempty"`
	ReturnedFromAnswer bool                 `json:"returnedFromAnswer"`
	ReachedAnswer      bool                 `json:"reachedAnswer"`
	LastError          string               `json:"lastError,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
}

// Slot returns the slot for a label.
func (s *QuizSession) Slot(l Label) *MediaSlot {
	i := l.Index()
	if i < 0 {
		return nil
	}
	return &s.Slots[i]
}

// PlayedCount is sum(playedFlags).
func (s *QuizSession) PlayedCount() int {
	n := 0
	for _, played := range s.PlayedFlags {
		if played {
			n++
		}
	}
	return n
}

// AllPlayed reports whether every item has been played at least once.
func (s *QuizSession) AllPlayed() bool { return s.PlayedCount() == SlotCount }

// MarkPlayed sets the label's played flag. Flags only ever go from false to true.
func (s *QuizSession) MarkPlayed(l Label) {
	if i := l.Index(); i >= 0 {
		s.PlayedFlags[i] = true
	}
}

// InFreeReplay reports whether the quiz view is past the mandatory pass. Once
// the answer stage was reached the view never drops back to sequential play.
func (s *QuizSession) InFreeReplay() bool {
	return s.MandatoryPassDone() || s.ReturnedFromAnswer || s.ReachedAnswer
}

// MandatoryPassDone reports whether the cursor has moved past the last item.
func (s *QuizSession) MandatoryPassDone() bool { return s.PlayCursor >= PlayCursorDone }

// CurrentLabel is the label under the play cursor; empty once the pass is done.
func (s *QuizSession) CurrentLabel() Label {
	if s.PlayCursor < 0 || s.PlayCursor >= SlotCount {
		return ""
	}
	return s.PlayOrder[s.PlayCursor]
}

// Validate checks that a loaded record is complete and well formed.
func (s *QuizSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrSessionCorrupt)
	}
	for i, slot := range s.Slots {
		if slot.Label != Labels[i] {
			return fmt.Errorf("%w: slot %d has label %q", ErrSessionCorrupt, i, slot.Label)
		}
		if slot.SourceRef == "" {
			return fmt.Errorf("%w: slot %s has no media", ErrSessionCorrupt, slot.Label)
		}
	}
	if !s.CorrectLabel.Valid() {
		return fmt.Errorf("%w: correct label %q", ErrSessionCorrupt, s.CorrectLabel)
	}
	if !IsPermutation(s.PlayOrder) {
		return fmt.Errorf("%w: play order %v", ErrSessionCorrupt, s.PlayOrder)
	}
	if s.PlayCursor < 0 || s.PlayCursor > PlayCursorDone {
		return fmt.Errorf("%w: play cursor %d", ErrSessionCorrupt, s.PlayCursor)
	}
	if s.Answered && !s.ChosenLabel.Valid() {
		return fmt.Errorf("%w: answered without a choice", ErrSessionCorrupt)
	}
	return nil
}

// IsPermutation reports whether order holds each label exactly once.
func IsPermutation(order [SlotCount]Label) bool {
	var seen [SlotCount]bool
	for _, l := range order {
		i := l.Index()
		if i < 0 || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// Clone returns a deep copy, so callers never share thumbnail buffers.
func (s *QuizSession) Clone() QuizSession {
	out := *s
	for i := range out.Slots {
		if s.Slots[i].Thumbnail != nil {
			out.Slots[i].Thumbnail = append([]byte(nil), s.Slots[i].Thumbnail...)
		}
	}
	return out
}
