package health

import "context"

// DBPinger checks store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks an optional dependency such as the embedding provider.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a probe function to Checker.
type CheckFunc func(ctx context.Context) error

// HealthCheck implements Checker.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
