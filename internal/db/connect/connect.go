// Package connect opens the configured article store.
package connect

import (
	"context"
	"fmt"

	"github.com/freethrow/tanalyst/internal/config"
	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/db/postgres"
	dbredis "github.com/freethrow/tanalyst/internal/db/redis"
)

// Stores is an opened backend. KV is nil on backends without key-value
// operations.
type Stores struct {
	Docs db.DocumentStore
	KV   db.KVStore
}

// Open connects to the backend named by cfg.Driver and waits until it answers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Stores, error) {
	var (
		out Stores
		err error
	)
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		flavor := dbredis.FlavorRedis
		if cfg.Driver == config.DriverValkey {
			flavor = dbredis.FlavorValkey
		}
		var s *dbredis.Store
		s, err = dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
			Flavor:   flavor,
		})
		if err == nil {
			out = Stores{Docs: s, KV: s}
		}
	case config.DriverPostgres:
		var s *postgres.Store
		s, err = postgres.NewStore(ctx, postgres.Config{
			DSN:       cfg.DSN,
			KeyPrefix: cfg.KeyPrefix,
		})
		if err == nil {
			out = Stores{Docs: s}
		}
	default:
		return Stores{}, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return Stores{}, fmt.Errorf("create %s store: %w", cfg.Driver, err)
	}

	if err := out.Docs.WaitForReady(ctx, config.Seconds(cfg.ReadinessTimeout)); err != nil {
		out.Docs.Close()
		return Stores{}, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
	}
	return out, nil
}
