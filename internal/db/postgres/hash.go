package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/domain/article"
)

// HSet upserts the given fields of the row addressed by key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	sql, args, err := upsertSQL(s.tableIdent(), s.id(key), fields)
	if err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

// HSetMulti upserts several rows in one batch round-trip.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		sql, args, err := upsertSQL(s.tableIdent(), s.id(item.Key), item.Fields)
		if err != nil {
			return &db.Error{Op: db.OpExec, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
		batch.Queue(sql, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, item := range items {
		if _, err := br.Exec(); err != nil {
			return &db.Error{Op: db.OpExec, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
	}
	return nil
}

// HGetAll returns the row's non-null columns. A missing row yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", projection(nil), s.tableIdent())
	rows, err := s.pool.Query(ctx, sql, s.id(key))
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	maps, err := collectFields(rows)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	if len(maps) == 0 {
		return map[string]string{}, nil
	}
	return maps[0], nil
}

// HGetAllMulti fetches several rows in one query, in key order.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = s.id(k)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1)", projection(nil), s.tableIdent())
	rows, err := s.pool.Query(ctx, sql, ids)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	maps, err := collectFields(rows)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	byID := make(map[string]map[string]string, len(maps))
	for _, m := range maps {
		byID[m[article.FieldID]] = m
	}
	out := make([]map[string]string, len(ids))
	for i, id := range ids {
		if m, ok := byID[id]; ok {
			out[i] = m
		} else {
			out[i] = map[string]string{}
		}
	}
	return out, nil
}

// Exists checks if the row addressed by key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", s.tableIdent())
	var ok bool
	if err := s.pool.QueryRow(ctx, sql, s.id(key)).Scan(&ok); err != nil {
		return false, &db.Error{Op: db.OpQuery, Err: err}
	}
	return ok, nil
}

// Scan returns the keys of all rows whose key matches a glob pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	sql := fmt.Sprintf("SELECT id FROM %s WHERE ($1 || id) LIKE $2 ORDER BY id", s.tableIdent())
	rows, err := s.pool.Query(ctx, sql, s.prefix, globToLike(pattern))
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	return keys, nil
}

// collectFields reads every row into a field map, skipping NULLs. The score
// column, when projected, is kept under scoreColumn.
func collectFields(rows pgx.Rows) ([]map[string]string, error) {
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		descs := rows.FieldDescriptions()
		m := make(map[string]string, len(vals))
		for i, v := range vals {
			if str, ok := decodeValue(v); ok {
				m[descs[i].Name] = str
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
