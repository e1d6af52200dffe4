package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session record exists for the tab.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionCorrupt is returned when a stored session record cannot be used.
	ErrSessionCorrupt = errors.New("quiz session is malformed")
	// ErrDraftNotFound indicates the intake draft expired or never existed.
	ErrDraftNotFound = errors.New("intake draft not found")
	// ErrIncompleteIntake means not every label has a selected file.
	ErrIncompleteIntake = errors.New("select a file for every label A-D")
	// ErrNoCorrectLabel means the correct answer was not chosen at intake.
	ErrNoCorrectLabel = errors.New("choose the correct label")
	// ErrInvalidLabel indicates a label outside A-D.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrNotAllPlayed blocks the answer stage until every item was played once.
	ErrNotAllPlayed = errors.New("play every item at least once first")
	// ErrAlreadyAnswered is returned for actions forbidden after locking.
	ErrAlreadyAnswered = errors.New("answer already locked")
	// ErrNoThumbnail means the slot has no captured preview.
	ErrNoThumbnail = errors.New("no thumbnail for this item")
	// ErrWrongPhase indicates an event that does not apply to the current state.
	ErrWrongPhase = errors.New("action not available in the current state")
)
