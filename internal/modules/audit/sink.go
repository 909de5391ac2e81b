package audit

import (
	"context"
	"time"

	"github.com/aristath/ledger/internal/metrics"
	"github.com/rs/zerolog"
)

// Publisher receives every recorded entry after it is stored
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// Sink is the ledger's fire-and-forget audit sink.
// It stores each entry and then publishes it; failures are logged and counted only.
type Sink struct {
	repo      *Repository
	publisher Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewSink creates a new audit sink. publisher and m may be nil.
func NewSink(repo *Repository, publisher Publisher, m *metrics.Metrics, log zerolog.Logger) *Sink {
	return &Sink{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log.With().Str("component", "audit_sink").Logger(),
	}
}

// Record implements domain.AuditSink
func (s *Sink) Record(ctx context.Context, actorID, actionType, targetType, targetID, description string, metadata map[string]interface{}) {
	// The settlement has already committed; a cancelled request must not lose its trail.
	ctx = context.WithoutCancel(ctx)

	e := Entry{
		ActorID:     actorID,
		ActionType:  actionType,
		TargetType:  targetType,
		TargetID:    targetID,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.Record(ctx, &e); err != nil {
		s.fail(err, e, "Failed to store audit entry")
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.fail(err, e, "Failed to publish audit entry")
		}
	}
}

func (s *Sink) fail(err error, e Entry, msg string) {
	s.metrics.AuditFailure()
	s.log.Warn().
		Err(err).
		Str("actor_id", e.ActorID).
		Str("action_type", e.ActionType).
		Str("target_type", e.TargetType).
		Str("target_id", e.TargetID).
		Msg(msg)
}
