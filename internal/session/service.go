// ABOUTME: Records validated session summaries for an actor
// ABOUTME: Dedupe claims guard concurrent repeats; the store rejects later ones

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/session-gateway/internal/apierr"
	"github.com/2389/session-gateway/internal/dedupe"
	"github.com/2389/session-gateway/internal/metrics"
	"github.com/2389/session-gateway/internal/store"
)

// Service validates and persists session completions.
type Service struct {
	store   store.SessionStore
	claims  *dedupe.Claims
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a Service. claims may be nil, in which case only the
// store detects duplicates.
func NewService(st store.SessionStore, claims *dedupe.Claims, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		claims:  claims,
		logger:  logger.With("component", "session"),
		metrics: m,
		now:     time.Now,
	}
}


// ValidateAndRecord validates raw, stamps completedAt, and saves the session
// for actor. Validation failures are InvalidInput wrapping a
// *ValidationError; a repeated session ID is a Conflict.
func (s *Service) ValidateAndRecord(ctx context.Context, actor string, raw []byte) (*store.StudySession, error) {
	if actor == "" {
		return nil, apierr.Unauthenticated("unauthorized")
	}

	summary, err := Validate(raw)
	if err != nil {
		s.metrics.SessionCompletion(metrics.SessionInvalid)
		s.logger.Debug("rejected session summary", "actor", actor, "error", err)
		return nil, &apierr.Error{Kind: apierr.KindInvalidInput, Message: "invalid session data provided", Err: err}
	}

	key := dedupe.Key{Actor: actor, SessionID: summary.SessionID}
	if s.claims != nil && !s.claims.Claim(key) {
		s.metrics.SessionCompletion(metrics.SessionDuplicate)
		return nil, apierr.Conflict("session already completed")
	}

	sess := &store.StudySession{
		ID:              summary.SessionID,
		ActorID:         actor,
		Duration:        summary.Duration,
		ClassesCovered:  summary.ClassesCovered,
		TopicsCovered:   summary.TopicsCovered,
		KeyConcepts:     summary.KeyConcepts,
		ConfidenceScore: summary.ConfidenceScore,
		SummaryText:     summary.SummaryText,
		CompletedAt:     s.now().UTC(),
	}

	if err := s.store.SaveSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrDuplicateSession) {
			s.metrics.SessionCompletion(metrics.SessionDuplicate)
			return nil, apierr.Conflict("session already completed")
		}
		if s.claims != nil {
			s.claims.Release(key)
		}
		s.metrics.SessionCompletion(metrics.SessionError)
		s.logger.Error("failed to save session", "actor", actor, "session_id", sess.ID, "error", err)
		return nil, apierr.Internal("failed to complete session", err)
	}

	s.metrics.SessionCompletion(metrics.SessionRecorded)
	s.logger.Info("session completed",
		"actor", actor,
		"session_id", sess.ID,
		"duration", sess.Duration,
		"confidence", sess.ConfidenceScore,
	)
	return sess, nil
}

// List returns the actor's recorded sessions, newest first.
func (s *Service) List(ctx context.Context, actor string, limit int) ([]*store.StudySession, error) {
	if actor == "" {
		return nil, apierr.Unauthenticated("unauthorized")
	}
	sessions, err := s.store.ListSessions(ctx, actor, limit)
	if err != nil {
		return nil, apierr.Internal("failed to list sessions", err)
	}
	return sessions, nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
