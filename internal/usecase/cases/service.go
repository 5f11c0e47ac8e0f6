// Package cases applies case lifecycle events to search documents and
// answers structured case searches.
package cases

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/domain/casedoc"
	"github.com/casetrack/casedex/internal/domain/search"
)

// DefaultResultsLimit caps a search when no explicit limit is configured.
const DefaultResultsLimit = 500

// Result is the outcome of a case search: the matching case UUIDs, capped at
// the results limit, and the uncapped total.
type Result struct {
	UUIDs []uuid.UUID
	Total int
}

// Service folds lifecycle events into per-case documents and runs searches
// over them.
type Service struct {
	repo         Repository
	resultsLimit int
}

// New creates a case service.
func New(repo Repository) *Service {
	return &Service{repo: repo, resultsLimit: DefaultResultsLimit}
}

// WithResultsLimit configures the search result cap.
func (s *Service) WithResultsLimit(limit int) *Service {
	if limit > 0 {
		s.resultsLimit = limit
	}
	return s
}

// CreateCase applies a case-created event.
func (s *Service) CreateCase(ctx context.Context, caseUUID uuid.UUID, details casedoc.CaseDetails) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.Create(details)
	})
}

// UpdateCase applies a case-updated event.
func (s *Service) UpdateCase(ctx context.Context, caseUUID uuid.UUID, u casedoc.CaseUpdate) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.Update(u)
	})
}

// DeleteCase marks a case deleted. The document is kept for audit searches.
func (s *Service) DeleteCase(ctx context.Context, caseUUID uuid.UUID) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.Delete()
	})
}

// CompleteCase marks a case completed.
func (s *Service) CompleteCase(ctx context.Context, caseUUID uuid.UUID) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.Complete()
	})
}

// AddCorrespondent attaches a correspondent to a case.
func (s *Service) AddCorrespondent(ctx context.Context, caseUUID uuid.UUID, corr casedoc.Correspondent) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.AddCorrespondent(corr)
	})
}

// RemoveCorrespondent detaches a correspondent from a case. The all-time set
// keeps the entry.
func (s *Service) RemoveCorrespondent(ctx context.Context, caseUUID, correspondentUUID uuid.UUID) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.RemoveCorrespondent(correspondentUUID)
	})
}

// AddTopic attaches a topic to a case.
func (s *Service) AddTopic(ctx context.Context, caseUUID uuid.UUID, topic casedoc.Topic) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.AddTopic(topic)
	})
}

// RemoveTopic detaches a topic from a case.
func (s *Service) RemoveTopic(ctx context.Context, caseUUID, topicUUID uuid.UUID) error {
	return s.apply(ctx, caseUUID, func(doc *casedoc.CaseDocument) {
		doc.RemoveTopic(topicUUID)
	})
}

// Search runs a structured case search. A request contributing no clause at
// all returns an empty result without touching storage.
func (s *Service) Search(ctx context.Context, req search.Request) (Result, error) {
	builder := search.FromRequest(req)
	if !builder.HasClauses() {
		return Result{UUIDs: []uuid.UUID{}}, nil
	}

	expr, err := builder.Build()
	if err != nil {
		return Result{}, fmt.Errorf("build search filter: %w", err)
	}

	ids, total, err := s.repo.Search(ctx, expr, s.resultsLimit)
	if err != nil {
		return Result{}, fmt.Errorf("search cases: %w", err)
	}
	return Result{UUIDs: ids, Total: total}, nil
}

// apply materializes the document for a case, mutates it, and persists the
// result. Events for unseen cases operate on a stub so arrival order never
// loses data.
func (s *Service) apply(ctx context.Context, caseUUID uuid.UUID, mutate func(*casedoc.CaseDocument)) error {
	doc, _, err := s.repo.GetOrCreate(ctx, caseUUID)
	if err != nil {
		return fmt.Errorf("load case %s: %w", caseUUID, err)
	}

	mutate(doc)

	if err := s.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("save case %s: %w", caseUUID, err)
	}
	return nil
}
