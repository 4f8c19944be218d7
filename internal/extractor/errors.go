package extractor

import (
	"fmt"
	"unicode/utf8"

	"github.com/harrison/filestage/internal/models"
)

// ProcessError reports a script that could not be spawned, exited
// non-zero or was killed by its deadline. Stderr is kept for logs and is
// not meant for HTTP callers.
type ProcessError struct {
	Script   Script
	ExitCode int // -1 when the process never produced an exit status
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("script %s failed (exit %d)", e.Script, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (stderr: " + truncate(e.Stderr, 200) + ")"
	}
	return msg
}

// Is matches models.ErrProcessFailure.
func (e *ProcessError) Is(target error) bool {
	return target == models.ErrProcessFailure
}

// Unwrap returns the underlying exec error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// truncate cuts s to at most maxLen bytes on a rune boundary and marks
// the cut with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
