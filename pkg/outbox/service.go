package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotedesk-backend/pkg/db/models"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
)

// DomainEvent is what a state change hands to Emit. Version and OccurredAt
// default to CurrentVersion and now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues event inside tx so it commits or rolls back with the state
// change that produced it. Each aggregate records a given event type at most
// once; a repeat is dropped and reported as queued=false.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (queued bool, err error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if event.AggregateID == uuid.Nil {
		return false, errors.New("aggregate id required")
	}

	eventID := uuid.New()
	payload, err := sealEnvelope(eventID.String(), event)
	if err != nil {
		return false, err
	}
	queued, err = s.repo.insertOnce(tx.WithContext(ctx), models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	})
	if err != nil {
		return false, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithEvent(ctx, eventID.String(), string(event.EventType)), map[string]any{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		})
		if queued {
			s.logg.Info(logCtx, "outbox event queued")
		} else {
			s.logg.Warn(logCtx, "outbox event already queued for aggregate")
		}
	}
	return queued, nil
}
