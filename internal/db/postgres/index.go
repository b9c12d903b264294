package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/freethrow/tanalyst/internal/db"
)

// CreateIndex materializes an index definition: extensions, the articles
// table, an HNSW index on the vector field and GIN indexes for text fields.
// The vector index name doubles as the existence marker.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	stmts, err := createStatements(s.tableIdent(), def)
	if err != nil {
		return err
	}

	exists, err := s.IndexExists(ctx, def.Name)
	if err != nil {
		return err
	}
	if exists {
		return db.ErrIndexExists
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", firstWords(stmt, 4), err)
			}
		}
		return nil
	})
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes every index derived from the definition name.
// The table and its rows are kept.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	exists, err := s.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return db.ErrIndexNotFound
	}

	rows, err := s.pool.Query(ctx,
		"SELECT indexname FROM pg_indexes WHERE tablename = $1 AND indexname LIKE $2",
		s.table, globToLike(indexBase(name)+"_*"))
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}

	for _, n := range names {
		if _, err := s.pool.Exec(ctx, "DROP INDEX IF EXISTS "+pgx.Identifier{n}.Sanitize()); err != nil {
			return &db.Error{Op: db.OpDropIndex, Err: err}
		}
	}
	return nil
}

// IndexExists looks for the vector index marker in pg_indexes.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = $1 AND indexname = $2)",
		s.table, vectorIndexName(name)).Scan(&ok)
	if err != nil {
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return ok, nil
}

// SupportsTextSearch returns true: full-text and trigram matching are built in.
func (s *Store) SupportsTextSearch(_ context.Context) bool {
	return true
}

func vectorIndexName(name string) string { return indexBase(name) + "_vec" }

func createStatements(table string, def *db.IndexDefinition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	vf := def.VectorField()
	if vf == nil {
		return nil, errors.New("a vector field is required")
	}
	if columns[vf.Name] != kindVector {
		return nil, fmt.Errorf("%q is not a vector column", vf.Name)
	}
	if vf.VectorDistance != "" && vf.VectorDistance != db.DistanceCosine {
		return nil, fmt.Errorf("unsupported distance %s: only COSINE", vf.VectorDistance)
	}
	for i := range def.Fields {
		if _, ok := columns[def.Fields[i].Name]; !ok {
			return nil, fmt.Errorf("unknown column %q", def.Fields[i].Name)
		}
	}

	base := indexBase(def.Name)
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE EXTENSION IF NOT EXISTS pg_trgm",
		createTableSQL(table, vf.VectorDim),
	}

	m, ef := vf.VectorM, vf.VectorEFConstruct
	if m <= 0 {
		m = 16
	}
	if ef <= 0 {
		ef = 200
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (%s vector_cosine_ops) WITH (m = %d, ef_construction = %d)",
		pgx.Identifier{vectorIndexName(def.Name)}.Sanitize(), table, pgx.Identifier{vf.Name}.Sanitize(), m, ef))

	if text := def.TextFields(); len(text) > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s)",
			pgx.Identifier{base + "_text"}.Sanitize(), table, textDocument(text)))
		for _, f := range text {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s gin_trgm_ops)",
				pgx.Identifier{base + "_trgm_" + f}.Sanitize(), table, pgx.Identifier{f}.Sanitize()))
		}
	}

	for i := range def.Fields {
		f := &def.Fields[i]
		col := pgx.Identifier{f.Name}.Sanitize()
		name := pgx.Identifier{base + "_" + f.Name}.Sanitize()
		switch f.Type {
		case db.IndexFieldTag:
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (lower(%s))", name, table, col))
		case db.IndexFieldNumeric:
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, col))
		}
	}

	return stmts, nil
}

func createTableSQL(table string, dim int) string {
	defs := make([]string, 0, len(allColumns))
	for _, c := range allColumns {
		typ := "text"
		switch columns[c] {
		case kindTime:
			typ = "timestamptz"
		case kindVector:
			typ = fmt.Sprintf("vector(%d)", dim)
		}
		def := pgx.Identifier{c}.Sanitize() + " " + typ
		if c == "id" {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
}

func firstWords(s string, n int) string {
	w := strings.Fields(s)
	if len(w) > n {
		w = w[:n]
	}
	return strings.Join(w, " ")
}
