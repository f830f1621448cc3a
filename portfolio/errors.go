package portfolio

import (
	"errors"
	"strings"

	"github.com/quantor/papertrade/risk"
)

var (
	// ErrPersistenceFailure: a durable write failed. For caller-initiated
	// mutations the in-memory change has been rolled back; for sweep exits
	// the close stands in memory and persistence is retried.
	ErrPersistenceFailure = errors.New("portfolio: persistence failure")

	// ErrConcurrencyConflict: another mutation holds the session's write
	// lock; the timer-driven caller should retry on its next tick.
	ErrConcurrencyConflict = errors.New("portfolio: session busy")

	// ErrSessionNotFound: no durable session with that id.
	ErrSessionNotFound = errors.New("portfolio: session not found")

	// ErrDuplicateSession: a coordinator for that id is already live.
	ErrDuplicateSession = errors.New("portfolio: session already exists")
)

// RejectionError carries the full risk decision for a refused trade, so the
// caller can explain every violated constraint, not only the first.
type RejectionError struct {
	Decision risk.Decision
}

func (e *RejectionError) Error() string {
	return "portfolio: trade rejected: " + strings.Join(e.Decision.Reasons(), "; ")
}
