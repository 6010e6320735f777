// Package session defines conversational sessions and the store contract that owns them.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown, deleted, or foreign sessions
var ErrNotFound = errors.New("session not found")

// ErrInvalidUser is returned when an operation is missing its user scope
var ErrInvalidUser = errors.New("user id cannot be empty")

// Session is one user's conversation
type Session struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	LastActive time.Time
	Turns      []Turn
}

// Turn is one recorded request/response exchange. Turns are immutable once appended.
type Turn struct {
	Seq        int
	Query      string
	Answer     string
	Specialist string
	Strategy   string
	Calls      []CallRecord
	CreatedAt  time.Time
}

// CallRecord summarizes one tool invocation made during a turn
type CallRecord struct {
	Service  string
	Tool     string
	Status   string
	Attempts int
}

// Summary is the listing view of a session
type Summary struct {
	ID        string
	CreatedAt time.Time
	TurnCount int
}

// Store owns all sessions. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, userID string) (*Session, error)
	// List returns the user's sessions in creation order
	List(ctx context.Context, userID string) ([]Summary, error)
	Get(ctx context.Context, sessionID, userID string) (*Session, error)
	Delete(ctx context.Context, sessionID, userID string) error
	AppendTurn(ctx context.Context, sessionID, userID string, turn Turn) error
	// CleanupStale removes sessions idle longer than maxIdle and returns how many
	CleanupStale(maxIdle time.Duration) int
	Count() int
}

// Clone returns a deep copy of s
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Turns != nil {
		out.Turns = make([]Turn, len(s.Turns))
		for i, t := range s.Turns {
			out.Turns[i] = t.clone()
		}
	}
	return &out
}

func (t Turn) clone() Turn {
	if t.Calls != nil {
		calls := make([]CallRecord, len(t.Calls))
		copy(calls, t.Calls)
		t.Calls = calls
	}
	return t
}
