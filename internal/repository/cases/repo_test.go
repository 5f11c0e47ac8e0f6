package cases

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/db"
	"github.com/casetrack/casedex/internal/domain"
	"github.com/casetrack/casedex/internal/domain/search/filter"
)

func TestGetOrCreate_MissingKeyReturnsStub(t *testing.T) {
	repo, ms := newTestRepo(t)
	caseUUID := uuid.New()

	ms.jsonGetFn = func(_ context.Context, key string, _ ...string) ([]byte, error) {
		if key != "casedex:case:"+caseUUID.String() {
			t.Errorf("unexpected key %q", key)
		}
		return nil, db.ErrKeyNotFound
	}

	doc, created, err := repo.GetOrCreate(context.Background(), caseUUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true for missing case")
	}
	if doc.CaseUUID() != caseUUID {
		t.Errorf("stub UUID = %s, want %s", doc.CaseUUID(), caseUUID)
	}
	if doc.Type() != "" || len(doc.CurrentTopics()) != 0 {
		t.Error("stub should carry only the case UUID")
	}
}

func TestGetOrCreate_StorageErrorPropagates(t *testing.T) {
	repo, ms := newTestRepo(t)

	storeErr := errors.New("connection refused")
	ms.jsonGetFn = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return nil, storeErr
	}

	_, _, err := repo.GetOrCreate(context.Background(), uuid.New())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestSaveThenGet_RoundTrip(t *testing.T) {
	repo, ms := newTestRepo(t)
	caseUUID := uuid.New()
	doc := testCase(t, caseUUID)

	var stored []byte
	ms.jsonSetFn = func(_ context.Context, key, path string, data []byte) error {
		if path != "$" {
			t.Errorf("path = %q, want $", path)
		}
		stored = data
		return nil
	}

	if err := repo.Save(context.Background(), doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	// JSON.GET $ wraps the document in a JSONPath array.
	ms.jsonGetFn = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return append(append([]byte("["), stored...), ']'), nil
	}

	got, err := repo.Get(context.Background(), caseUUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CaseUUID() != caseUUID {
		t.Errorf("UUID = %s, want %s", got.CaseUUID(), caseUUID)
	}
	if got.Type() != "MIN" || got.Reference() != "MIN/0001/24" {
		t.Errorf("descriptive fields lost: type=%q ref=%q", got.Type(), got.Reference())
	}
	if got.Data()["priority"] != "high" {
		t.Errorf("data map lost: %v", got.Data())
	}
	if !got.DateReceived().Equal(doc.DateReceived()) {
		t.Errorf("dateReceived = %s, want %s", got.DateReceived(), doc.DateReceived())
	}
}

func TestSave_DerivedFields(t *testing.T) {
	repo, ms := newTestRepo(t)
	doc := testCase(t, uuid.New())

	var stored map[string]any
	ms.jsonSetFn = func(_ context.Context, _, _ string, data []byte) error {
		return json.Unmarshal(data, &stored)
	}

	if err := repo.Save(context.Background(), doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	pairs, ok := stored["dataPairs"].([]any)
	if !ok {
		t.Fatalf("dataPairs missing: %v", stored)
	}
	if len(pairs) != 2 || pairs[0] != "channel=email" || pairs[1] != "priority=high" {
		t.Errorf("dataPairs = %v, want sorted name=value pairs", pairs)
	}

	epochDay, ok := stored["dateReceivedEpochDay"].(float64)
	if !ok {
		t.Fatalf("dateReceivedEpochDay missing: %v", stored)
	}
	if int64(epochDay) != doc.DateReceived().EpochDay() {
		t.Errorf("epochDay = %v, want %d", epochDay, doc.DateReceived().EpochDay())
	}
}

func TestSave_NoDateReceivedStoresNull(t *testing.T) {
	repo, ms := newTestRepo(t)
	caseUUID := uuid.New()

	var stored map[string]any
	ms.jsonSetFn = func(_ context.Context, _, _ string, data []byte) error {
		return json.Unmarshal(data, &stored)
	}

	stub, _, err := repo.GetOrCreate(context.Background(), caseUUID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := repo.Save(context.Background(), stub); err != nil {
		t.Fatalf("save: %v", err)
	}
	if v, present := stored["dateReceivedEpochDay"]; !present || v != nil {
		t.Errorf("dateReceivedEpochDay = %v, want null", v)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestSearch_MapsKeysToUUIDs(t *testing.T) {
	repo, ms := newTestRepo(t)
	a, b := uuid.New(), uuid.New()

	ms.searchIDsFn = func(_ context.Context, q *db.IDQuery) (*db.IDResult, error) {
		if q.IndexName != "casedex:cases:idx" {
			t.Errorf("index = %q", q.IndexName)
		}
		if q.Limit != 500 {
			t.Errorf("limit = %d, want 500", q.Limit)
		}
		return &db.IDResult{
			Total: 3,
			Keys: []string{
				"casedex:case:" + a.String(),
				"casedex:case:not-a-uuid",
				"casedex:case:" + b.String(),
			},
		}, nil
	}

	cond, _ := filter.NewMatch("type", "MIN")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	ids, total, err := repo.Search(context.Background(), expr, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Errorf("ids = %v, want [%s %s]", ids, a, b)
	}
}

func TestEnsureIndex_SkipsExisting(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.indexExistsFn = func(_ context.Context, name string) (bool, error) {
		return true, nil
	}
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Error("create should not be called when the index exists")
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_CreatesSchema(t *testing.T) {
	repo, ms := newTestRepo(t)

	var def *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, d *db.IndexDefinition) error {
		def = d
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def == nil {
		t.Fatal("index was not created")
	}
	if def.Name != "casedex:cases:idx" {
		t.Errorf("name = %q", def.Name)
	}
	if def.StorageType != db.StorageJSON {
		t.Errorf("storage = %v, want JSON", def.StorageType)
	}

	aliases := make(map[string]db.IndexFieldType, len(def.Fields))
	for _, f := range def.Fields {
		aliases[f.Alias] = f.Type
	}
	want := map[string]db.IndexFieldType{
		"type":               db.IndexFieldTag,
		"date_received":      db.IndexFieldNumeric,
		"correspondent_name": db.IndexFieldText,
		"topic":              db.IndexFieldTag,
		"data":               db.IndexFieldTag,
		"deleted":            db.IndexFieldTag,
	}
	for alias, typ := range want {
		if aliases[alias] != typ {
			t.Errorf("field %q = %v, want %v", alias, aliases[alias], typ)
		}
	}
}

func TestEnsureIndex_ConcurrentCreateTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return db.ErrIndexExists
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
