package application

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is a local, synchronous input failure. No gateway call was
// attempted; the caller's state is unchanged.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// newValidationError builds a ValidationError with a formatted message.
func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// LockedError indicates the pull request's conversation has been locked on
// GitHub, blocking any comment or review submission. The remediation (ask a
// maintainer to unlock) differs from a plain retry, so the UI surfaces it as
// a distinct dialog.
type LockedError struct {
	PRNumber int
	Err      error
}

func (e *LockedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conversation on pull request #%d is locked: %v", e.PRNumber, e.Err)
	}
	return fmt.Sprintf("conversation on pull request #%d is locked", e.PRNumber)
}

func (e *LockedError) Unwrap() error {
	return e.Err
}

// lockedPhrasings are the two known backend phrasings for a locked
// conversation. Matching is case-insensitive over the whole error chain text.
var lockedPhrasings = []string{
	"conversation is locked",
	"is locked on github",
}

// isLockedMessage reports whether an error message matches a known
// locked-conversation phrasing.
func isLockedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range lockedPhrasings {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// classifySubmitError wraps a gateway submission failure: locked-conversation
// failures become LockedError (detected from the error text or the PR's
// cached locked flag, whichever fires first); everything else passes through
// unchanged for the caller to surface generically.
func classifySubmitError(err error, prNumber int, prLocked bool) error {
	if err == nil {
		return nil
	}
	var locked *LockedError
	if errors.As(err, &locked) {
		return err
	}
	if prLocked || isLockedMessage(err.Error()) {
		return &LockedError{PRNumber: prNumber, Err: err}
	}
	return err
}
