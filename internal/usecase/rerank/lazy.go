package rerank

import (
	"context"
	"fmt"

	"github.com/freethrow/tanalyst/internal/lazy"
)

// LazyStrategy defers building a remote strategy until it is first used,
// sharing one load between concurrent callers. Load failures are cached
// by the provider for its cooldown so a dead endpoint is skipped quickly.
type LazyStrategy struct {
	name     string
	provider *lazy.Provider[Strategy]
}

// NewLazyStrategy wraps provider under name.
func NewLazyStrategy(name string, provider *lazy.Provider[Strategy]) *LazyStrategy {
	return &LazyStrategy{name: name, provider: provider}
}

// Name identifies the strategy in logs and metrics.
func (l *LazyStrategy) Name() string { return l.name }

// Score loads the strategy if needed and delegates.
func (l *LazyStrategy) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	st, err := l.provider.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", l.name, err)
	}
	return st.Score(ctx, query, texts)
}

// Prober is implemented by remote strategies that can confirm readiness.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbedLoader returns a loader that probes st before handing it out.
func ProbedLoader(st Strategy) lazy.Loader[Strategy] {
	return func(ctx context.Context) (Strategy, error) {
		if p, ok := st.(Prober); ok {
			if err := p.Probe(ctx); err != nil {
				return nil, err
			}
		}
		return st, nil
	}
}
