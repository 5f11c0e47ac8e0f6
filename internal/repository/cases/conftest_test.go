package cases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/db"
	"github.com/casetrack/casedex/internal/domain/casedoc"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonSetFn     func(ctx context.Context, key, path string, data []byte) error
	jsonGetFn     func(ctx context.Context, key string, paths ...string) ([]byte, error)
	searchIDsFn   func(ctx context.Context, q *db.IDQuery) (*db.IDResult, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SearchIDs(ctx context.Context, q *db.IDQuery) (*db.IDResult, error) {
	if m.searchIDsFn != nil {
		return m.searchIDsFn(ctx, q)
	}
	return &db.IDResult{}, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, "")
	return repo, ms
}

func testCase(t *testing.T, caseUUID uuid.UUID) *casedoc.CaseDocument {
	t.Helper()
	doc := casedoc.New(caseUUID)
	doc.Create(casedoc.CaseDetails{
		Created:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Type:         "MIN",
		Reference:    "MIN/0001/24",
		DateReceived: casedoc.NewDate(2024, 3, 1),
		Data:         map[string]string{"priority": "high", "channel": "email"},
	})
	return doc
}
