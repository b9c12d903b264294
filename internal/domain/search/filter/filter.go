// Package filter restricts retrieval to articles matching metadata conditions.
package filter

import (
	"fmt"
	"strings"

	"github.com/freethrow/tanalyst/internal/domain/article"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Filterable article fields.
const (
	KeySector      = "sector"
	KeySource      = "source"
	KeyStatus      = "status"
	KeyArticleDate = "article_date"
)

// Expression is a structured filter with must/should/must_not boolean semantics.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	groups := []struct {
		name  string
		conds []Condition
	}{{"must", must}, {"should", should}, {"must_not", mustNot}}
	for _, g := range groups {
		if len(g.conds) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("too many %s conditions (max %d)", g.name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// ForArticles builds a must-only expression from optional tag values.
// Empty values are skipped.
func ForArticles(sector, source string, status article.Status) (Expression, error) {
	var must []Condition
	for _, kv := range [][2]string{{KeySector, sector}, {KeySource, source}, {KeyStatus, string(status)}} {
		if kv[1] == "" {
			continue
		}
		c, err := NewMatch(kv[0], kv[1])
		if err != nil {
			return Expression{}, err
		}
		must = append(must, c)
	}
	return NewExpression(must, nil, nil)
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// Matches evaluates the expression against an in-memory article.
// Used by scanning retrievers that cannot push filters down to a store.
func (e Expression) Matches(a *article.Article) bool {
	for _, c := range e.must {
		if !c.matches(a) {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.matches(a) {
			return false
		}
	}
	if len(e.should) == 0 {
		return true
	}
	for _, c := range e.should {
		if c.matches(a) {
			return true
		}
	}
	return false
}

// Condition is a single filter clause: either a tag match or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	if key != KeySector && key != KeySource && key != KeyStatus {
		return Condition{}, fmt.Errorf("key %q is not a tag field", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition. Dates are unix seconds.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if key != KeyArticleDate {
		return Condition{}, fmt.Errorf("key %q is not a numeric field", key)
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

func (c Condition) matches(a *article.Article) bool {
	if c.IsRange() {
		if a.ArticleDate.IsZero() {
			return false
		}
		return c.rangeExpr.Contains(float64(a.ArticleDate.Unix()))
	}
	var v string
	switch c.key {
	case KeySector:
		v = a.Sector
	case KeySource:
		v = a.Source
	case KeyStatus:
		v = string(a.Status)
	}
	return strings.EqualFold(v, c.match)
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v satisfies every bound.
func (r Range) Contains(v float64) bool {
	switch {
	case r.gt != nil && v <= *r.gt:
		return false
	case r.gte != nil && v < *r.gte:
		return false
	case r.lt != nil && v >= *r.lt:
		return false
	case r.lte != nil && v > *r.lte:
		return false
	}
	return true
}
