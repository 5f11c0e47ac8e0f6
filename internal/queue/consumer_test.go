package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrack/casedex/internal/db"
	"github.com/casetrack/casedex/internal/domain/event"
)

// --- Mocks ---

// mockStreams hands out one batch of fresh messages plus one batch of
// claimable pending messages, and records acks and dead letter writes.
type mockStreams struct {
	mu sync.Mutex

	createGroupErr error
	batch          []db.StreamMessage
	delivered      bool

	pending    []db.StreamMessage
	claimCalls int

	acked      []string
	deadAdds   []map[string]string
	deadStream string
}

func (m *mockStreams) StreamCreateGroup(_ context.Context, _, _ string) error {
	return m.createGroupErr
}

func (m *mockStreams) StreamReadGroup(
	ctx context.Context, _, _, _ string, _ int, _ time.Duration,
) ([]db.StreamMessage, error) {
	m.mu.Lock()
	if !m.delivered {
		m.delivered = true
		batch := m.batch
		m.mu.Unlock()
		return batch, nil
	}
	m.mu.Unlock()

	// Emulate a blocking read that only the context can interrupt.
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockStreams) StreamClaimPending(
	_ context.Context, _, _, _ string, _ time.Duration, _ string, _ int,
) ([]db.StreamMessage, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	pending := m.pending
	m.pending = nil
	return pending, "0-0", nil
}

func (m *mockStreams) StreamAck(_ context.Context, _, _ string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, ids...)
	return nil
}

func (m *mockStreams) StreamAdd(_ context.Context, stream string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadStream = stream
	m.deadAdds = append(m.deadAdds, values)
	return nil
}

func (m *mockStreams) claimCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimCalls
}

func (m *mockStreams) snapshot() (acked []string, deadAdds []map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...), append([]map[string]string(nil), m.deadAdds...)
}

// mockDispatcher fails a configurable number of times before succeeding.
type mockDispatcher struct {
	mu         sync.Mutex
	failures   int
	recognized bool
	calls      int
	done       chan struct{}
}

func (m *mockDispatcher) Dispatch(_ context.Context, _ event.Envelope) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return true, errors.New("apply failed")
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	return m.recognized, nil
}

func (m *mockDispatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testConfig() Config {
	return Config{
		Stream:          "case-events",
		Group:           "casedex",
		Consumer:        "worker-1",
		MaxRedeliveries: 2,
		RedeliveryDelay: time.Millisecond,
		Lanes:           2,
		BlockTimeout:    10 * time.Millisecond,
		ClaimMinIdle:    time.Millisecond,
		ClaimInterval:   time.Hour,
	}
}

func streamEntry(t *testing.T, id string, caseUUID uuid.UUID, typ event.Type) db.StreamMessage {
	t.Helper()
	return db.StreamMessage{
		ID: id,
		Values: map[string]string{
			BodyField: `{"type":"` + string(typ) + `","caseUUID":"` + caseUUID.String() + `"}`,
		},
	}
}

// runConsumer runs c.Run in the background and returns a stop function that
// cancels and waits for the run to finish.
func runConsumer(t *testing.T, c *Consumer) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- c.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-finished:
			if err != nil {
				t.Fatalf("run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not shut down")
		}
	}
}

// --- Tests ---

func TestRun_AcksAfterSuccessfulApply(t *testing.T) {
	caseUUID := uuid.New()
	ms := &mockStreams{batch: []db.StreamMessage{streamEntry(t, "1-0", caseUUID, event.CaseDeleted)}}
	done := make(chan struct{})
	md := &mockDispatcher{recognized: true, done: done}

	stop := runConsumer(t, New(ms, md, testConfig(), zap.NewNop()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event was not dispatched")
	}
	stop()

	acked, deadAdds := ms.snapshot()
	if len(acked) != 1 || acked[0] != "1-0" {
		t.Errorf("acked = %v, want [1-0]", acked)
	}
	if len(deadAdds) != 0 {
		t.Errorf("dead letters = %v, want none", deadAdds)
	}
}

func TestRun_ExhaustedRetriesDeadLetter(t *testing.T) {
	caseUUID := uuid.New()
	ms := &mockStreams{batch: []db.StreamMessage{streamEntry(t, "2-0", caseUUID, event.CaseCompleted)}}
	md := &mockDispatcher{failures: 100} // never succeeds

	c := New(ms, md, testConfig(), zap.NewNop())
	stop := runConsumer(t, c)

	deadline := time.After(5 * time.Second)
	for {
		_, deadAdds := ms.snapshot()
		if len(deadAdds) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("event was not dead lettered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()

	// MaxRedeliveries=2 means three attempts total.
	if got := md.callCount(); got != 3 {
		t.Errorf("dispatch calls = %d, want 3", got)
	}

	acked, deadAdds := ms.snapshot()
	if ms.deadStream != "case-events:dlq" {
		t.Errorf("dead letter stream = %q", ms.deadStream)
	}
	dl := deadAdds[0]
	if dl["attempts"] != "3" {
		t.Errorf("attempts = %q, want 3", dl["attempts"])
	}
	if dl["error"] == "" || dl["failed_at"] == "" {
		t.Errorf("dead letter missing metadata: %v", dl)
	}
	if dl[BodyField] == "" {
		t.Error("dead letter must carry the original body")
	}
	if len(acked) != 1 || acked[0] != "2-0" {
		t.Errorf("acked = %v, want the dead lettered entry", acked)
	}
}

func TestRun_UndecodableEntryDeadLetteredImmediately(t *testing.T) {
	ms := &mockStreams{batch: []db.StreamMessage{
		{ID: "3-0", Values: map[string]string{BodyField: "{not json"}},
	}}
	md := &mockDispatcher{recognized: true}

	stop := runConsumer(t, New(ms, md, testConfig(), zap.NewNop()))

	deadline := time.After(5 * time.Second)
	for {
		_, deadAdds := ms.snapshot()
		if len(deadAdds) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("entry was not dead lettered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()

	if got := md.callCount(); got != 0 {
		t.Errorf("dispatch calls = %d, want 0 for undecodable entry", got)
	}
	_, deadAdds := ms.snapshot()
	if deadAdds[0]["attempts"] != "1" {
		t.Errorf("attempts = %q, want 1", deadAdds[0]["attempts"])
	}
}

// A consumer that stops mid-processing leaves its entry in the group's
// pending list. The next consumer must sweep that list on startup and apply
// the entry, not just read fresh ones.
func TestRun_PendingEntryReclaimedOnStartup(t *testing.T) {
	caseUUID := uuid.New()
	ms := &mockStreams{pending: []db.StreamMessage{
		streamEntry(t, "1-0", caseUUID, event.CaseCompleted),
	}}
	done := make(chan struct{})
	md := &mockDispatcher{recognized: true, done: done}

	stop := runConsumer(t, New(ms, md, testConfig(), zap.NewNop()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reclaimed entry was not dispatched")
	}
	stop()

	acked, deadAdds := ms.snapshot()
	if len(acked) != 1 || acked[0] != "1-0" {
		t.Errorf("acked = %v, want [1-0]", acked)
	}
	if len(deadAdds) != 0 {
		t.Errorf("dead letters = %v, want none", deadAdds)
	}
	if ms.claimCount() == 0 {
		t.Error("pending list was never swept")
	}
}

func TestRun_ReclaimedUndecodableEntryDeadLettered(t *testing.T) {
	ms := &mockStreams{pending: []db.StreamMessage{
		{ID: "4-0", Values: map[string]string{BodyField: "{not json"}},
	}}
	md := &mockDispatcher{recognized: true}

	stop := runConsumer(t, New(ms, md, testConfig(), zap.NewNop()))

	deadline := time.After(5 * time.Second)
	for {
		acked, deadAdds := ms.snapshot()
		if len(deadAdds) > 0 && len(acked) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("reclaimed entry was not dead lettered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()

	if got := md.callCount(); got != 0 {
		t.Errorf("dispatch calls = %d, want 0 for undecodable entry", got)
	}
}

func TestRun_ExistingGroupTolerated(t *testing.T) {
	ms := &mockStreams{createGroupErr: db.ErrGroupExists}
	md := &mockDispatcher{recognized: true}

	stop := runConsumer(t, New(ms, md, testConfig(), zap.NewNop()))
	stop()
}

func TestRun_GroupCreateFailureStops(t *testing.T) {
	ms := &mockStreams{createGroupErr: errors.New("conn refused")}
	c := New(ms, &mockDispatcher{}, testConfig(), zap.NewNop())

	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected error from group creation")
	}
}

func TestLaneFor_StablePerCase(t *testing.T) {
	env := event.Envelope{CaseUUID: uuid.New()}
	first := laneFor(env, 4)
	for i := 0; i < 10; i++ {
		if got := laneFor(env, 4); got != first {
			t.Fatalf("lane changed: %d != %d", got, first)
		}
	}
	if first < 0 || first >= 4 {
		t.Errorf("lane %d out of range", first)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Stream: "case-events"}
	cfg.ApplyDefaults()

	if cfg.DeadLetterStream != "case-events:dlq" {
		t.Errorf("dlq = %q", cfg.DeadLetterStream)
	}
	if cfg.MaxRedeliveries != 2 || cfg.Lanes != 4 || cfg.BatchSize != 32 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RedeliveryDelay == 0 || cfg.BackoffMultiplier == 0 || cfg.BlockTimeout == 0 {
		t.Errorf("time defaults = %+v", cfg)
	}
	if cfg.ClaimMinIdle == 0 || cfg.ClaimInterval == 0 {
		t.Errorf("claim defaults = %+v", cfg)
	}
}
