// Package search implements the dual-path search executor: dispatch
// between exact linear scan and the IVF approximate index, metadata
// filtering, bounded top-k ranking, and batched search (spec.md §4.5).
package search

import "github.com/edgevdb/core/internal/collection"

// ClauseKind tags a filter clause's comparison kind.
type ClauseKind int

const (
	Match ClauseKind = iota
	Range
)

// Clause is one filter predicate against a payload field. For Match, Value
// must equal the point's field. For Range, at least one of
// Gte/Lte/Gt/Lt bounds the field numerically; missing fields never match.
type Clause struct {
	Field string
	Kind  ClauseKind

	Value collection.PayloadValue

	Gte, Lte, Gt, Lt *float64
}

func (c Clause) matches(payload map[string]collection.PayloadValue) bool {
	v, ok := payload[c.Field]
	if !ok {
		return false
	}
	switch c.Kind {
	case Match:
		return v.Equal(c.Value)
	case Range:
		f, numeric := v.AsFloat64()
		if !numeric {
			return false
		}
		if c.Gte != nil && !(f >= *c.Gte) {
			return false
		}
		if c.Lte != nil && !(f <= *c.Lte) {
			return false
		}
		if c.Gt != nil && !(f > *c.Gt) {
			return false
		}
		if c.Lt != nil && !(f < *c.Lt) {
			return false
		}
		return true
	default:
		return false
	}
}

// Filter is the must/should/must_not clause set of spec.md §4.5.
// MinimumShouldMatch defaults to 1 when Should is non-empty, per spec.
type Filter struct {
	Must                []Clause
	Should              []Clause
	MustNot             []Clause
	MinimumShouldMatch  int
}

// Matches reports whether payload satisfies the filter. A nil payload is
// treated as empty: every clause fails against it.
func (f *Filter) Matches(payload map[string]collection.PayloadValue) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !c.matches(payload) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if c.matches(payload) {
			return false
		}
	}
	if len(f.Should) > 0 {
		min := f.MinimumShouldMatch
		if min <= 0 {
			min = 1
		}
		matched := 0
		for _, c := range f.Should {
			if c.matches(payload) {
				matched++
			}
		}
		if matched < min {
			return false
		}
	}
	return true
}
