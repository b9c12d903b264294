package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means search still works with reduced quality, e.g. lexical only.
	Degraded Status = "degraded"
	// Unhealthy means the article store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 3 * time.Second

const componentDatabase = "database"

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Component is a named optional dependency.
type Component struct {
	Name    string
	Checker Checker
}

// Service coordinates health checks.
type Service struct {
	db         DBPinger
	components []Component
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Service. Components with a nil Checker are skipped.
func New(db DBPinger, timeout time.Duration, logger *zap.Logger, components ...Component) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	active := components[:0:0]
	for _, c := range components {
		if c.Checker != nil {
			active = append(active, c)
		}
	}
	return &Service{db: db, components: active, timeout: timeout, logger: logger}
}

// Check runs every check concurrently. A store failure makes the report
// unhealthy; any other failure only degrades it.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		g      errgroup.Group
		checks = make(map[string]CheckResult, len(s.components)+1)
	)

	run := func(name string, check func(context.Context) error) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := check(cctx); err != nil {
				res = CheckError
				s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		})
	}

	run(componentDatabase, s.db.Ping)
	for _, c := range s.components {
		run(c.Name, c.Checker.HealthCheck)
	}
	_ = g.Wait()

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == componentDatabase {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
