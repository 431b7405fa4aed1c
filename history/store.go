// Package history records chat transcripts so past sessions can be listed
// and replayed from the CLI.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/petal-labs/mcpchat/core"
)

// ErrSessionNotFound is returned when a session has no recorded messages.
var ErrSessionNotFound = errors.New("history: session not found")

// Entry is one recorded conversation message.
type Entry struct {
	SessionID string
	Seq       int
	Time      time.Time
	Message   core.Message
}

// SessionSummary describes one recorded session.
type SessionSummary struct {
	ID       string
	Started  time.Time
	Updated  time.Time
	Messages int
}

// Store persists transcripts.
type Store interface {
	// Record appends messages to a session's transcript in order.
	Record(ctx context.Context, sessionID string, messages []core.Message) error

	// Sessions returns sessions, most recently updated first.
	// limit: max sessions to return (0 means no limit)
	Sessions(ctx context.Context, limit int) ([]SessionSummary, error)

	// Transcript returns a session's messages in recorded order.
	Transcript(ctx context.Context, sessionID string) ([]Entry, error)

	Close() error
}
