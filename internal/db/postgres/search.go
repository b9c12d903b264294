package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/domain/article"
)

// SearchKNN orders rows by cosine distance to the query vector.
// Score is 1 - distance, clamped at 0.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if len(q.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	if q.K <= 0 {
		return nil, errors.New("k must be positive")
	}

	sql, args := knnSQL(s.tableIdent(), q)
	return s.search(ctx, sql, args)
}

// SearchText ranks rows by ts_rank over the text fields, plus trigram word
// similarity when fuzziness is enabled.
func (s *Store) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if q.TopK <= 0 {
		return nil, errors.New("topK must be positive")
	}

	sql, args := textSQL(s.tableIdent(), q)
	if sql == "" {
		return &db.SearchResult{}, nil
	}
	return s.search(ctx, sql, args)
}

// SearchCount supports only the match-all query "*".
func (s *Store) SearchCount(ctx context.Context, _ string, query string) (int, error) {
	if query != "*" {
		return 0, fmt.Errorf("unsupported count query %q", query)
	}
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+s.tableIdent()).Scan(&n); err != nil {
		return 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	return n, nil
}

func (s *Store) search(ctx context.Context, sql string, args []any) (*db.SearchResult, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	maps, err := collectFields(rows)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	entries := make([]db.SearchEntry, 0, len(maps))
	for _, m := range maps {
		score, _ := strconv.ParseFloat(m[scoreColumn], 64)
		delete(m, scoreColumn)
		entries = append(entries, db.SearchEntry{
			Key:    s.key(m[article.FieldID]),
			Score:  max(0, score),
			Fields: m,
		})
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func knnSQL(table string, q *db.KNNQuery) (string, []any) {
	field := q.VectorField
	if field == "" {
		field = article.FieldEmbedding
	}
	col := pgx.Identifier{field}.Sanitize()

	args := &argList{}
	vec := args.add(pgvector.NewVector(q.Vector))
	where := []string{col + " IS NOT NULL"}
	if w := buildWhere(q.Filters, args); w != "" {
		where = append(where, w)
	}
	limit := args.add(q.K)

	sql := fmt.Sprintf("SELECT %s, 1 - (%s <=> %s) AS %s FROM %s WHERE %s ORDER BY %s <=> %s LIMIT %s",
		projection(q.ReturnFields), col, vec, pgx.Identifier{scoreColumn}.Sanitize(), table,
		strings.Join(where, " AND "), col, vec, limit)
	return sql, args.vals
}

// textSQL returns "" when the query has no searchable terms.
func textSQL(table string, q *db.TextQuery) (string, []any) {
	tsq := tsQuery(q.Query, q.MaxEdits, q.PrefixLength)
	if tsq == "" {
		return "", nil
	}

	args := &argList{}
	doc := textDocument(q.Fields)
	query := fmt.Sprintf("to_tsquery('simple', %s)", args.add(tsq))

	score := fmt.Sprintf("ts_rank(%s, %s)", doc, query)
	match := fmt.Sprintf("%s @@ %s", doc, query)
	if q.MaxEdits > 0 {
		fields := q.Fields
		if len(fields) == 0 {
			fields = []string{article.FieldTitleIT, article.FieldContentIT}
		}
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = fmt.Sprintf("coalesce(%s, '')", pgx.Identifier{f}.Sanitize())
		}
		concat := strings.Join(parts, " || ' ' || ")
		raw := args.add(strings.ToLower(q.Query))
		score = fmt.Sprintf("%s + word_similarity(%s, lower(%s))", score, raw, concat)
		match = fmt.Sprintf("(%s OR %s <%% lower(%s))", match, raw, concat)
	}

	where := []string{match}
	if w := buildWhere(q.Filters, args); w != "" {
		where = append(where, w)
	}
	limit := args.add(q.TopK)

	sql := fmt.Sprintf("SELECT %s, %s AS %s FROM %s WHERE %s ORDER BY %s DESC LIMIT %s",
		projection(q.ReturnFields), score, pgx.Identifier{scoreColumn}.Sanitize(), table,
		strings.Join(where, " AND "), pgx.Identifier{scoreColumn}.Sanitize(), limit)
	return sql, args.vals
}
