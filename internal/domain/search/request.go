// Package search holds the structured search request and the builder that
// folds it into a boolean filter expression.
package search

import "github.com/casetrack/casedex/internal/domain/casedoc"

// Indexed field aliases, shared with the FT index schema.
const (
	FieldCaseType          = "type"
	FieldDateReceived      = "date_received"
	FieldCorrespondentName = "correspondent_name"
	FieldTopic             = "topic"
	FieldData              = "data"
	FieldDeleted           = "deleted"
)

// DateRange is an inclusive from/to pair; either bound may be unset.
type DateRange struct {
	From casedoc.Date
	To   casedoc.Date
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Request is a structured bag of optional case search filters. Absent or
// empty fields contribute no clause.
type Request struct {
	CaseTypes         []string
	DateReceived      *DateRange
	CorrespondentName string
	Topic             string
	Data              map[string]string
	ActiveOnly        bool
}
