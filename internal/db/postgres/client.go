// Package postgres stores articles in a single table with a pgvector
// embedding column and serves the same search contract as the Redis store.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/freethrow/tanalyst/internal/db"
)

// Compile-time check: Store implements db.DocumentStore.
var _ db.DocumentStore = (*Store)(nil)

// DefaultTable is the articles table name.
const DefaultTable = "articles"

// Config holds connection parameters for a Postgres store.
type Config struct {
	DSN       string
	Table     string
	KeyPrefix string
	MaxConns  int32
}

// Store implements db.DocumentStore over pgxpool. Keys are "<prefix><id>"
// so callers see the same addressing as on Redis.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	prefix string
}

// NewStore parses the DSN and opens a pool. The vector type is registered
// on every new connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// the extension may not exist yet on a fresh database
		if err := pgxvec.RegisterTypes(ctx, conn); err != nil && !isUndefinedType(err) {
			return err
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &Store{pool: pool, table: table, prefix: cfg.KeyPrefix}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WaitForReady polls Ping until the database responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) tableIdent() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) id(key string) string { return strings.TrimPrefix(key, s.prefix) }

func isUndefinedType(err error) bool {
	return strings.Contains(err.Error(), "vector type not found")
}
