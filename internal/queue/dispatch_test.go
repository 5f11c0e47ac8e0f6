package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrack/casedex/internal/domain"
	"github.com/casetrack/casedex/internal/domain/casedoc"
	"github.com/casetrack/casedex/internal/domain/event"
)

// mockHandler records which case service method was called.
type mockHandler struct {
	calls []string
	err   error

	lastCase          uuid.UUID
	lastDetails       casedoc.CaseDetails
	lastCorrespondent casedoc.Correspondent
	lastTopic         casedoc.Topic
	lastEntity        uuid.UUID
}

func (m *mockHandler) record(name string, caseUUID uuid.UUID) error {
	m.calls = append(m.calls, name)
	m.lastCase = caseUUID
	return m.err
}

func (m *mockHandler) CreateCase(_ context.Context, caseUUID uuid.UUID, details casedoc.CaseDetails) error {
	m.lastDetails = details
	return m.record("create", caseUUID)
}

func (m *mockHandler) UpdateCase(_ context.Context, caseUUID uuid.UUID, _ casedoc.CaseUpdate) error {
	return m.record("update", caseUUID)
}

func (m *mockHandler) DeleteCase(_ context.Context, caseUUID uuid.UUID) error {
	return m.record("delete", caseUUID)
}

func (m *mockHandler) CompleteCase(_ context.Context, caseUUID uuid.UUID) error {
	return m.record("complete", caseUUID)
}

func (m *mockHandler) AddCorrespondent(_ context.Context, caseUUID uuid.UUID, corr casedoc.Correspondent) error {
	m.lastCorrespondent = corr
	return m.record("addCorrespondent", caseUUID)
}

func (m *mockHandler) RemoveCorrespondent(_ context.Context, caseUUID, entityUUID uuid.UUID) error {
	m.lastEntity = entityUUID
	return m.record("removeCorrespondent", caseUUID)
}

func (m *mockHandler) AddTopic(_ context.Context, caseUUID uuid.UUID, topic casedoc.Topic) error {
	m.lastTopic = topic
	return m.record("addTopic", caseUUID)
}

func (m *mockHandler) RemoveTopic(_ context.Context, caseUUID, entityUUID uuid.UUID) error {
	m.lastEntity = entityUUID
	return m.record("removeTopic", caseUUID)
}

func envelope(t *testing.T, typ event.Type, caseUUID uuid.UUID, payload any) event.Envelope {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		data = raw
	}
	return event.Envelope{Type: typ, CaseUUID: caseUUID, Data: data}
}

func TestDispatch_RoutesByType(t *testing.T) {
	caseUUID := uuid.New()
	entityUUID := uuid.New()

	tests := []struct {
		typ      event.Type
		payload  any
		wantCall string
	}{
		{event.CaseCreated, event.CreateCaseRequest{UUID: caseUUID, Type: "MIN"}, "create"},
		{event.CaseUpdated, event.UpdateCaseRequest{UUID: caseUUID, Type: "MIN"}, "update"},
		{event.CaseDeleted, nil, "delete"},
		{event.CaseCompleted, nil, "complete"},
		{event.CorrespondentCreated, event.CreateCorrespondentRequest{UUID: entityUUID, Fullname: "Alice Smith"}, "addCorrespondent"},
		{event.CorrespondentDeleted, event.RemoveEntityRequest{UUID: entityUUID}, "removeCorrespondent"},
		{event.CaseTopicCreated, event.CreateTopicRequest{UUID: entityUUID, Text: "Pensions"}, "addTopic"},
		{event.CaseTopicDeleted, event.RemoveEntityRequest{UUID: entityUUID}, "removeTopic"},
	}

	for _, tc := range tests {
		t.Run(string(tc.typ), func(t *testing.T) {
			h := &mockHandler{}
			d := NewDispatcher(h, zap.NewNop())

			recognized, err := d.Dispatch(context.Background(), envelope(t, tc.typ, caseUUID, tc.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !recognized {
				t.Error("expected recognized=true")
			}
			if len(h.calls) != 1 || h.calls[0] != tc.wantCall {
				t.Errorf("calls = %v, want [%s]", h.calls, tc.wantCall)
			}
			if h.lastCase != caseUUID {
				t.Errorf("caseUUID = %s, want %s", h.lastCase, caseUUID)
			}
		})
	}
}

func TestDispatch_PayloadFieldsReachHandler(t *testing.T) {
	h := &mockHandler{}
	d := NewDispatcher(h, zap.NewNop())
	caseUUID := uuid.New()
	topicUUID := uuid.New()

	// Topic payloads use the producer's field names.
	env := event.Envelope{
		Type:     event.CaseTopicCreated,
		CaseUUID: caseUUID,
		Data:     json.RawMessage(`{"uuid":"` + topicUUID.String() + `","topicName":"Pensions"}`),
	}

	if _, err := d.Dispatch(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.lastTopic.UUID != topicUUID || h.lastTopic.Text != "Pensions" {
		t.Errorf("topic = %+v", h.lastTopic)
	}
}

func TestDispatch_UnknownTypeSkipped(t *testing.T) {
	h := &mockHandler{}
	d := NewDispatcher(h, zap.NewNop())

	recognized, err := d.Dispatch(context.Background(),
		envelope(t, "DOCUMENT_UPLOADED", uuid.New(), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recognized {
		t.Error("expected recognized=false for unknown type")
	}
	if len(h.calls) != 0 {
		t.Errorf("handler must not be called, got %v", h.calls)
	}
}

func TestDispatch_MissingCaseUUID(t *testing.T) {
	d := NewDispatcher(&mockHandler{}, zap.NewNop())

	_, err := d.Dispatch(context.Background(), envelope(t, event.CaseDeleted, uuid.Nil, nil))
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDispatch_MalformedPayload(t *testing.T) {
	d := NewDispatcher(&mockHandler{}, zap.NewNop())

	env := event.Envelope{
		Type:     event.CaseCreated,
		CaseUUID: uuid.New(),
		Data:     json.RawMessage(`{not json`),
	}
	_, err := d.Dispatch(context.Background(), env)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDispatch_HandlerErrorPropagates(t *testing.T) {
	h := &mockHandler{err: errors.New("store down")}
	d := NewDispatcher(h, zap.NewNop())

	_, err := d.Dispatch(context.Background(), envelope(t, event.CaseCompleted, uuid.New(), nil))
	if !errors.Is(err, h.err) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
