package postgres

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
)

// scoreColumn carries the computed relevance in search projections.
const scoreColumn = "__score"

type columnKind int

const (
	kindText columnKind = iota
	kindTime
	kindVector
)

// columns maps every stored article field to its column type.
var columns = map[string]columnKind{
	article.FieldID:                 kindText,
	article.FieldTitleEN:            kindText,
	article.FieldTitleIT:            kindText,
	article.FieldContentEN:          kindText,
	article.FieldContentIT:          kindText,
	article.FieldSector:             kindText,
	article.FieldSource:             kindText,
	article.FieldURL:                kindText,
	article.FieldStatus:             kindText,
	article.FieldArticleDate:        kindTime,
	article.FieldScrapedAt:          kindTime,
	article.FieldEmbedding:          kindVector,
	article.FieldEmbeddingModel:     kindText,
	article.FieldEmbeddingCreatedAt: kindTime,
}

// allColumns is the full projection in a stable order.
var allColumns = []string{
	article.FieldID, article.FieldTitleEN, article.FieldTitleIT,
	article.FieldContentEN, article.FieldContentIT, article.FieldSector,
	article.FieldSource, article.FieldURL, article.FieldStatus,
	article.FieldArticleDate, article.FieldScrapedAt, article.FieldEmbedding,
	article.FieldEmbeddingModel, article.FieldEmbeddingCreatedAt,
}

// argList accumulates positional parameters.
type argList struct{ vals []any }

func (a *argList) add(v any) string {
	a.vals = append(a.vals, v)
	return "$" + strconv.Itoa(len(a.vals))
}

// projection returns the quoted select list. Unknown fields are dropped and
// id is always included.
func projection(fields []string) string {
	if len(fields) == 0 {
		fields = allColumns
	}
	cols := []string{pgx.Identifier{article.FieldID}.Sanitize()}
	for _, f := range fields {
		if _, ok := columns[f]; !ok || f == article.FieldID {
			continue
		}
		cols = append(cols, pgx.Identifier{f}.Sanitize())
	}
	return strings.Join(cols, ", ")
}

// encodeValue converts a hash-style string field into the column's Go type.
func encodeValue(field, value string) (any, error) {
	kind, ok := columns[field]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", field)
	}
	switch kind {
	case kindTime:
		t := article.ParseTime(value)
		if t.IsZero() {
			return nil, nil
		}
		return t, nil
	case kindVector:
		v := article.DecodeVector(value)
		if len(v) == 0 {
			return nil, nil
		}
		return pgvector.NewVector(v), nil
	default:
		return value, nil
	}
}

// decodeValue renders a scanned column value in hash-style string form.
func decodeValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case time.Time:
		return strconv.FormatInt(x.Unix(), 10), true
	case pgvector.Vector:
		return article.EncodeVector(x.Slice()), true
	case *pgvector.Vector:
		if x == nil {
			return "", false
		}
		return article.EncodeVector(x.Slice()), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	default:
		return fmt.Sprint(x), true
	}
}

// upsertSQL builds an INSERT ... ON CONFLICT statement touching only the given
// fields, which mirrors HSET semantics.
func upsertSQL(table, id string, fields map[string]string) (string, []any, error) {
	names := make([]string, 0, len(fields))
	for f := range fields {
		if f == article.FieldID {
			continue
		}
		names = append(names, f)
	}
	slices.Sort(names)

	args := &argList{}
	cols := []string{pgx.Identifier{article.FieldID}.Sanitize()}
	placeholders := []string{args.add(id)}
	updates := make([]string, 0, len(names))

	for _, f := range names {
		v, err := encodeValue(f, fields[f])
		if err != nil {
			return "", nil, err
		}
		col := pgx.Identifier{f}.Sanitize()
		cols = append(cols, col)
		placeholders = append(placeholders, args.add(v))
		updates = append(updates, col+" = EXCLUDED."+col)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), cols[0])
	if len(updates) == 0 {
		sql += "DO NOTHING"
	} else {
		sql += "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return sql, args.vals, nil
}

// buildWhere translates a filter expression into SQL conditions.
// Returns "" for an empty expression.
func buildWhere(expr filter.Expression, args *argList) string {
	if expr.IsEmpty() {
		return ""
	}

	var parts []string
	for _, c := range expr.Must() {
		parts = append(parts, buildCondition(c, args))
	}
	if should := expr.Should(); len(should) > 0 {
		ors := make([]string, 0, len(should))
		for _, c := range should {
			ors = append(ors, buildCondition(c, args))
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	for _, c := range expr.MustNot() {
		parts = append(parts, "NOT coalesce("+buildCondition(c, args)+", false)")
	}
	return strings.Join(parts, " AND ")
}

func buildCondition(c filter.Condition, args *argList) string {
	col := pgx.Identifier{c.Key()}.Sanitize()
	if c.IsMatch() {
		return fmt.Sprintf("lower(%s) = lower(%s)", col, args.add(c.Match()))
	}

	r := c.Range()
	if r == nil {
		return "true"
	}
	expr := fmt.Sprintf("extract(epoch from %s)", col)
	var bounds []string
	if r.GT() != nil {
		bounds = append(bounds, expr+" > "+args.add(*r.GT()))
	}
	if r.GTE() != nil {
		bounds = append(bounds, expr+" >= "+args.add(*r.GTE()))
	}
	if r.LT() != nil {
		bounds = append(bounds, expr+" < "+args.add(*r.LT()))
	}
	if r.LTE() != nil {
		bounds = append(bounds, expr+" <= "+args.add(*r.LTE()))
	}
	if len(bounds) == 0 {
		return "true"
	}
	return "(" + strings.Join(bounds, " AND ") + ")"
}

// textDocument is the tsvector expression over the given fields.
func textDocument(fields []string) string {
	if len(fields) == 0 {
		fields = []string{article.FieldTitleIT, article.FieldContentIT}
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("coalesce(%s, '')", pgx.Identifier{f}.Sanitize()))
	}
	return "to_tsvector('simple', " + strings.Join(parts, " || ' ' || ") + ")"
}

// tsQuery renders OR-ed lexemes for to_tsquery. Terms longer than prefixLen
// get prefix matching when fuzziness is enabled.
func tsQuery(query string, maxEdits, prefixLen int) string {
	terms := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, t := range terms {
		if maxEdits > 0 && len([]rune(t)) > prefixLen {
			terms[i] = t + ":*"
		}
	}
	return strings.Join(terms, " | ")
}

// globToLike converts a SCAN-style glob into a LIKE pattern.
func globToLike(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// indexBase turns an index name like "article:idx" into an identifier stem.
func indexBase(name string) string {
	return strings.NewReplacer(":", "_", "-", "_").Replace(name)
}
