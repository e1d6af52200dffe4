package app

import (
	"fmt"

	"media-quiz-service/internal/domain"
)

// SlotView is a slot as shown on the free-replay buttons and answer choices.
type SlotView struct {
	Label        domain.Label     `json:"label"`
	Kind         domain.MediaKind `json:"kind"`
	HasThumbnail bool             `json:"hasThumbnail"`

	// Placeholder is shown instead of the thumbnail when there is none.
	Placeholder string `json:"placeholder,omitempty"`
}

// QuizView is the state of the quiz page after an operation.
type QuizView struct {
	SessionID          string                 `json:"sessionId"`
	Mode               domain.Mode            `json:"mode"`
	CurrentLabel       domain.Label           `json:"currentLabel,omitempty"`
	Position           int                    `json:"position,omitempty"` // 1-based index into the play order
	NowPlaying         domain.Label           `json:"nowPlaying,omitempty"`
	PlayedFlags        [domain.SlotCount]bool `json:"playedFlags"`
	PlayedCount        int                    `json:"playedCount"`
	Status             string                 `json:"status"`
	ShowNext           bool                   `json:"showNext"`
	CanProceed         bool                   `json:"canProceed"`
	ReturnedFromAnswer bool                   `json:"returnedFromAnswer"`
	Error              string                 `json:"error,omitempty"`
	Slots              []SlotView             `json:"slots,omitempty"`
}

// ChoiceView is one answer control.
type ChoiceView struct {
	SlotView

	Enabled bool `json:"enabled"`
	Chosen  bool `json:"chosen"`
	Dimmed  bool `json:"dimmed"`

	// Verdict is "correct" or "wrong" on the chosen control once locked.
	Verdict string `json:"verdict,omitempty"`
}

// AnswerView is the state of the answer page.
type AnswerView struct {
	SessionID    string       `json:"sessionId"`
	Choices      []ChoiceView `json:"choices"`
	Answered     bool         `json:"answered"`
	Correct      bool         `json:"correct"`
	CorrectLabel domain.Label `json:"correctLabel,omitempty"` // revealed only once locked
	Result       string       `json:"result,omitempty"`
	CanGoBack    bool         `json:"canGoBack"`
}

const (
	placeholderAudio     = "audio file"
	placeholderNoPreview = "no preview"
)

func slotView(slot domain.MediaSlot) SlotView {
	v := SlotView{Label: slot.Label, Kind: slot.Kind, HasThumbnail: slot.HasThumbnail()}
	if !v.HasThumbnail {
		if slot.Kind == domain.KindAudio {
			v.Placeholder = placeholderAudio
		} else {
			v.Placeholder = placeholderNoPreview
		}
	}
	return v
}

func slotViews(s domain.QuizSession) []SlotView {
	out := make([]SlotView, 0, domain.SlotCount)
	for _, slot := range s.Slots {
		out = append(out, slotView(slot))
	}
	return out
}

// renderQuiz builds the quiz page. returned is true on the render that
// consumed the one-shot returned-from-answer signal.
func renderQuiz(s domain.QuizSession, returned bool) QuizView {
	v := QuizView{
		SessionID:          s.ID,
		PlayedFlags:        s.PlayedFlags,
		PlayedCount:        s.PlayedCount(),
		CanProceed:         s.AllPlayed(),
		ReturnedFromAnswer: returned,
		Error:              s.LastError,
	}
	if !returned && !s.InFreeReplay() {
		v.Mode = domain.ModePlaying
		v.CurrentLabel = s.CurrentLabel()
		v.Position = s.PlayCursor + 1
		v.ShowNext = true
		v.Status = fmt.Sprintf("Playing %s (%d/%d), played %d/%d",
			v.CurrentLabel, v.Position, domain.SlotCount, v.PlayedCount, domain.SlotCount)
		return v
	}

	v.Mode = domain.ModeFreeReplay
	v.Slots = slotViews(s)
	switch {
	case returned:
		v.Status = "Returned from the answer screen. Replay any item."
	case v.CanProceed:
		v.Status = "All items played. Replay any item."
	default:
		v.Status = fmt.Sprintf("Played %d/%d. Play the rest before answering.", v.PlayedCount, domain.SlotCount)
	}
	return v
}

func renderAnswer(s domain.QuizSession) AnswerView {
	v := AnswerView{
		SessionID: s.ID,
		Answered:  s.Answered,
		CanGoBack: !s.Answered,
		Choices:   make([]ChoiceView, 0, domain.SlotCount),
	}
	for _, slot := range s.Slots {
		c := ChoiceView{SlotView: slotView(slot), Enabled: !s.Answered}
		if s.Answered {
			if slot.Label == s.ChosenLabel {
				c.Chosen = true
				c.Verdict = "wrong"
				if slot.Label == s.CorrectLabel {
					c.Verdict = "correct"
				}
			} else {
				c.Dimmed = true
			}
		}
		v.Choices = append(v.Choices, c)
	}
	if s.Answered {
		v.Correct = s.ChosenLabel == s.CorrectLabel
		v.CorrectLabel = s.CorrectLabel
		if v.Correct {
			v.Result = "Correct!"
		} else {
			v.Result = fmt.Sprintf("Wrong. The correct answer is %s.", s.CorrectLabel)
		}
	}
	return v
}
