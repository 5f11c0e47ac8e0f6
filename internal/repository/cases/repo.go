// Package cases persists case documents as JSON and answers id-only
// searches over the case index.
package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/db"
	"github.com/casetrack/casedex/internal/domain"
	"github.com/casetrack/casedex/internal/domain/casedoc"
	"github.com/casetrack/casedex/internal/domain/search/filter"
)

// DefaultKeyPrefix namespaces all casedex keys in a shared database.
const DefaultKeyPrefix = "casedex:"

// store is the consumer interface for case documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	SearchIDs(ctx context.Context, q *db.IDQuery) (*db.IDResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo implements usecase/cases.Repository.
type Repo struct {
	store  store
	prefix string
}

// New creates a case repository. An empty keyPrefix falls back to
// DefaultKeyPrefix.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: keyPrefix}
}

// GetOrCreate returns the stored document for a case, or a fresh stub when
// none exists yet. The second return reports whether a stub was materialized;
// the stub is not persisted until Save.
func (r *Repo) GetOrCreate(ctx context.Context, caseUUID uuid.UUID) (*casedoc.CaseDocument, bool, error) {
	doc, err := r.Get(ctx, caseUUID)
	if err != nil {
		if errors.Is(err, domain.ErrCaseNotFound) {
			return casedoc.New(caseUUID), true, nil
		}
		return nil, false, err
	}
	return doc, false, nil
}

// Get returns the stored document for a case.
func (r *Repo) Get(ctx context.Context, caseUUID uuid.UUID) (*casedoc.CaseDocument, error) {
	key := r.docKey(caseUUID)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrCaseNotFound
		}
		return nil, fmt.Errorf("json.get %s: %w", key, err)
	}
	return parseJSONGetResult(raw)
}

// Save writes the full document, replacing any prior version.
func (r *Repo) Save(ctx context.Context, doc *casedoc.CaseDocument) error {
	key := r.docKey(doc.CaseUUID())
	data, err := json.Marshal(toDTO(doc))
	if err != nil {
		return fmt.Errorf("marshal case %s: %w", doc.CaseUUID(), err)
	}
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return fmt.Errorf("json.set %s: %w", key, err)
	}
	return nil
}

// Search returns the UUIDs of cases matching the filter expression, capped at
// limit, along with the total match count.
func (r *Repo) Search(ctx context.Context, filters filter.Expression, limit int) ([]uuid.UUID, int, error) {
	result, err := r.store.SearchIDs(ctx, &db.IDQuery{
		IndexName: r.indexName(),
		Filters:   filters,
		Limit:     limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("search cases: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(result.Keys))
	for _, key := range result.Keys {
		id, err := uuid.Parse(strings.TrimPrefix(key, r.casePrefix()))
		if err != nil {
			// Foreign key under our prefix; skip rather than fail the search.
			continue
		}
		ids = append(ids, id)
	}
	return ids, result.Total, nil
}

// EnsureIndex creates the case search index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName(), err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.indexName()).
		OnJSON().
		Prefix(r.casePrefix()).
		Tag("$.type", "type").
		Numeric("$.dateReceivedEpochDay", "date_received").
		Text("$.currentCorrespondents[*].fullname", "correspondent_name").
		Tag("$.currentTopics[*].text", "topic").
		Tag("$.dataPairs[*]", "data").
		Tag("$.deleted", "deleted").
		Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName(), err)
	}
	return nil
}

func (r *Repo) docKey(caseUUID uuid.UUID) string {
	return r.casePrefix() + caseUUID.String()
}

func (r *Repo) casePrefix() string {
	return r.prefix + "case:"
}

func (r *Repo) indexName() string {
	return r.prefix + "cases:idx"
}
