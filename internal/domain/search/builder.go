package search

import (
	"fmt"
	"sort"

	"github.com/casetrack/casedex/internal/domain/search/filter"
)

// Builder accumulates filter clauses from a Request, one method per search
// dimension. Each method adds a clause only when the corresponding field is
// supplied, so an all-empty request produces no clauses at all and callers
// must short-circuit instead of querying the store.
type Builder struct {
	must    []filter.Condition
	should  []filter.Condition
	mustNot []filter.Condition
	err     error
}

// NewBuilder creates an empty query builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// FromRequest applies every dimension of the request to a fresh builder.
func FromRequest(req Request) *Builder {
	b := NewBuilder()
	b.CaseTypes(req.CaseTypes)
	b.DateRange(req.DateReceived)
	b.Correspondent(req.CorrespondentName)
	b.Topic(req.Topic)
	b.DataFields(req.Data)
	b.ActiveOnly(req.ActiveOnly)
	return b
}

// CaseTypes adds a should-group matching any of the supplied type codes.
func (b *Builder) CaseTypes(types []string) {
	for _, t := range types {
		if t == "" {
			continue
		}
		b.addShould(filter.NewMatch(FieldCaseType, t))
	}
}

// DateRange adds an inclusive range clause on the date-received field,
// expressed in epoch days.
func (b *Builder) DateRange(r *DateRange) {
	if r == nil || r.IsZero() {
		return
	}
	var gte, lte *float64
	if !r.From.IsZero() {
		v := float64(r.From.EpochDay())
		gte = &v
	}
	if !r.To.IsZero() {
		v := float64(r.To.EpochDay())
		lte = &v
	}
	rng, err := filter.NewRangeFilter(nil, gte, nil, lte)
	if err != nil {
		b.fail(err)
		return
	}
	b.addMust(filter.NewRange(FieldDateReceived, rng))
}

// Correspondent adds a partial text match against current correspondent names.
func (b *Builder) Correspondent(name string) {
	if name == "" {
		return
	}
	b.addMust(filter.NewText(FieldCorrespondentName, name))
}

// Topic adds an exact match against current topic labels.
func (b *Builder) Topic(label string) {
	if label == "" {
		return
	}
	b.addMust(filter.NewMatch(FieldTopic, label))
}

// DataFields adds one exact-match clause per name/value pair, encoded as
// "name=value" tags. Pairs are applied in sorted key order so identical
// requests build identical expressions.
func (b *Builder) DataFields(data map[string]string) {
	if len(data) == 0 {
		return
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if data[k] == "" {
			continue
		}
		b.addMust(filter.NewMatch(FieldData, fmt.Sprintf("%s=%s", k, data[k])))
	}
}

// ActiveOnly excludes deleted documents when the flag is set.
func (b *Builder) ActiveOnly(flag bool) {
	if !flag {
		return
	}
	b.addMustNot(filter.NewMatch(FieldDeleted, "true"))
}

// HasClauses reports whether at least one clause has been added.
func (b *Builder) HasClauses() bool {
	return len(b.must) > 0 || len(b.should) > 0 || len(b.mustNot) > 0
}

// Build returns the composed expression, or the first error encountered
// while adding clauses.
func (b *Builder) Build() (filter.Expression, error) {
	if b.err != nil {
		return filter.Expression{}, b.err
	}
	return filter.NewExpression(b.must, b.should, b.mustNot)
}

func (b *Builder) addMust(c filter.Condition, err error) {
	if err != nil {
		b.fail(err)
		return
	}
	b.must = append(b.must, c)
}

func (b *Builder) addShould(c filter.Condition, err error) {
	if err != nil {
		b.fail(err)
		return
	}
	b.should = append(b.should, c)
}

func (b *Builder) addMustNot(c filter.Condition, err error) {
	if err != nil {
		b.fail(err)
		return
	}
	b.mustNot = append(b.mustNot, c)
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
