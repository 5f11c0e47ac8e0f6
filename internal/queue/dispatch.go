// Package queue consumes case lifecycle events from a stream consumer group,
// routes them to per-case lanes, and applies them through the case service.
// Failed events are retried with backoff and dead-lettered once redeliveries
// are exhausted.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrack/casedex/internal/domain"
	"github.com/casetrack/casedex/internal/domain/casedoc"
	"github.com/casetrack/casedex/internal/domain/event"
)

// CaseEventHandler is the case service surface the dispatcher drives.
type CaseEventHandler interface {
	CreateCase(ctx context.Context, caseUUID uuid.UUID, details casedoc.CaseDetails) error
	UpdateCase(ctx context.Context, caseUUID uuid.UUID, u casedoc.CaseUpdate) error
	DeleteCase(ctx context.Context, caseUUID uuid.UUID) error
	CompleteCase(ctx context.Context, caseUUID uuid.UUID) error
	AddCorrespondent(ctx context.Context, caseUUID uuid.UUID, corr casedoc.Correspondent) error
	RemoveCorrespondent(ctx context.Context, caseUUID, correspondentUUID uuid.UUID) error
	AddTopic(ctx context.Context, caseUUID uuid.UUID, topic casedoc.Topic) error
	RemoveTopic(ctx context.Context, caseUUID, topicUUID uuid.UUID) error
}

// Dispatcher translates envelopes into case service calls.
type Dispatcher struct {
	handler CaseEventHandler
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(handler CaseEventHandler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{handler: handler, logger: logger}
}

// Dispatch applies one envelope. The first return reports whether the event
// type is recognized; unrecognized types are skipped without error so new
// producers never wedge the stream.
func (d *Dispatcher) Dispatch(ctx context.Context, env event.Envelope) (bool, error) {
	if env.CaseUUID == uuid.Nil {
		return true, fmt.Errorf("event %s without case UUID: %w", env.Type, domain.ErrInvalidRequest)
	}

	switch env.Type {
	case event.CaseCreated:
		var req event.CreateCaseRequest
		if err := unmarshalPayload(env, &req); err != nil {
			return true, err
		}
		return true, d.handler.CreateCase(ctx, env.CaseUUID, req.Details())

	case event.CaseUpdated:
		var req event.UpdateCaseRequest
		if err := unmarshalPayload(env, &req); err != nil {
			return true, err
		}
		return true, d.handler.UpdateCase(ctx, env.CaseUUID, req.Update())

	case event.CaseDeleted:
		return true, d.handler.DeleteCase(ctx, env.CaseUUID)

	case event.CaseCompleted:
		return true, d.handler.CompleteCase(ctx, env.CaseUUID)

	case event.CorrespondentCreated:
		var req event.CreateCorrespondentRequest
		if err := unmarshalPayload(env, &req); err != nil {
			return true, err
		}
		return true, d.handler.AddCorrespondent(ctx, env.CaseUUID, req.Correspondent())

	case event.CorrespondentDeleted:
		var req event.RemoveEntityRequest
		if err := unmarshalPayload(env, &req); err != nil {
			return true, err
		}
		return true, d.handler.RemoveCorrespondent(ctx, env.CaseUUID, req.UUID)

	case event.CaseTopicCreated:
		var req event.CreateTopicRequest
		if err := unmarshalPayload(env, &req); err != nil {
			return true, err
		}
		return true, d.handler.AddTopic(ctx, env.CaseUUID, req.Topic())

	case event.CaseTopicDeleted:
		var req event.RemoveEntityRequest
		if err := unmarshalPayload(env, &req); err != nil {
			return true, err
		}
		return true, d.handler.RemoveTopic(ctx, env.CaseUUID, req.UUID)
	}

	d.logger.Info("Ignoring event of unrecognized type",
		zap.String("type", string(env.Type)),
		zap.String("caseUUID", env.CaseUUID.String()),
	)
	return false, nil
}

func unmarshalPayload(env event.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("event %s without payload: %w", env.Type, domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w: %w", env.Type, domain.ErrInvalidRequest, err)
	}
	return nil
}
