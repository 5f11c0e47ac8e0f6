package cases

import (
	"context"

	"github.com/google/uuid"

	"github.com/casetrack/casedex/internal/domain/casedoc"
	"github.com/casetrack/casedex/internal/domain/search/filter"
)

// Repository defines the storage contract for case documents.
type Repository interface {
	GetOrCreate(ctx context.Context, caseUUID uuid.UUID) (doc *casedoc.CaseDocument, created bool, err error)
	Save(ctx context.Context, doc *casedoc.CaseDocument) error
	Search(ctx context.Context, filters filter.Expression, limit int) (ids []uuid.UUID, total int, err error)
}
