package dialogue

import (
	"errors"
	"fmt"
)

var (
	// ErrClarificationAlreadyPending rejects a second clarifying question
	// while one is still open. The existing one is reused instead.
	ErrClarificationAlreadyPending = errors.New("a clarifying question is already pending")

	// ErrTicketAlreadySubmitted rejects re-submission of a submitted
	// ticket. Edits go through the edit-instruction path.
	ErrTicketAlreadySubmitted = errors.New("ticket already submitted")

	// ErrNoTicketDraft is returned when an edit or submit targets a
	// session without a draft.
	ErrNoTicketDraft = errors.New("no ticket draft in session")

	// ErrTurnInProgress is returned when a new user message arrives while
	// the previous turn of the same session is still being processed.
	ErrTurnInProgress = errors.New("previous turn still in progress")
)

// LanguageModelError marks a turn-level failure of the language-model
// capability. The turn is aborted and no partial state is committed; the
// caller may safely retry the whole turn.
type LanguageModelError struct {
	Err error
}

func (e *LanguageModelError) Error() string {
	return fmt.Sprintf("language model failure: %v", e.Err)
}

func (e *LanguageModelError) Unwrap() error {
	return e.Err
}

// IsLanguageModelError reports whether err is (or wraps) a language-model
// failure.
func IsLanguageModelError(err error) bool {
	var lmErr *LanguageModelError
	return errors.As(err, &lmErr)
}
