// ABOUTME: Store interface and data types for session-gateway persistence
// ABOUTME: Defines the StudySession record and the SessionStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when an actor records the same session twice
var ErrDuplicateSession = errors.New("session already recorded")

// StudySession is a validated end-of-session summary.
type StudySession struct {
	ID              string
	ActorID         string
	Duration        float64 // seconds
	ClassesCovered  []string
	TopicsCovered   []string
	KeyConcepts     []string
	ConfidenceScore float64
	SummaryText     string
	CompletedAt     time.Time
}

// SessionStore persists study sessions.
type SessionStore interface {
	// SaveSession inserts a new session. Returns ErrDuplicateSession if the
	// actor already recorded a session with the same ID.
	SaveSession(ctx context.Context, session *StudySession) error

	// GetSession returns one session. Returns ErrNotFound if absent.
	GetSession(ctx context.Context, actorID, id string) (*StudySession, error)

	// ListSessions returns the actor's sessions, most recently completed first.
	// A limit of zero or less returns every session.
	ListSessions(ctx context.Context, actorID string, limit int) ([]*StudySession, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
