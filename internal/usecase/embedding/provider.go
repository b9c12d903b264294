// Package embedding turns article and query text into vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/lazy"
)

// Factory builds the remote encoder chain (client plus caches).
// It is called lazily, at most once per successful load.
type Factory func(ctx context.Context) (domain.Embedder, error)

// Options configures the provider.
type Options struct {
	Model      string
	Dimensions int

	QueryInstruction    string
	DocumentInstruction string
	QueryMaxChars       int
	DocumentMaxChars    int

	// LoadTimeout bounds construction plus health check.
	LoadTimeout time.Duration
	// LoadCooldown is how long a failed load is reported before retrying.
	LoadCooldown time.Duration
}

type encoders struct {
	base     domain.Embedder
	query    *domain.InstructionEmbedder
	document *domain.InstructionEmbedder
}

// Provider is the process-wide encoder handle. The remote client is built
// and health checked on first use and shared by every caller afterwards.
type Provider struct {
	encoders *lazy.Provider[*encoders]
	opts     Options
	logger   *zap.Logger
}

// NewProvider creates a provider. Nothing is contacted until the first call.
func NewProvider(factory Factory, opts Options, logger *zap.Logger) *Provider {
	p := &Provider{opts: opts, logger: logger}
	p.encoders = lazy.New[*encoders]("embedder:"+opts.Model, func(ctx context.Context) (*encoders, error) {
		base, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if hc, ok := base.(domain.HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				return nil, fmt.Errorf("health check: %w", err)
			}
		}
		logger.Info("Embedding model ready",
			zap.String("model", opts.Model),
			zap.Int("dimensions", opts.Dimensions),
		)
		return &encoders{
			base: base,
			query: domain.NewInstructionEmbedder(
				NewInstrumentedEmbedder(base, opts.Model, PurposeQuery, logger),
				opts.QueryInstruction, opts.QueryMaxChars),
			document: domain.NewInstructionEmbedder(
				NewInstrumentedEmbedder(base, opts.Model, PurposeDocument, logger),
				opts.DocumentInstruction, opts.DocumentMaxChars),
		}, nil
	}, lazy.WithTimeout(opts.LoadTimeout), lazy.WithCooldown(opts.LoadCooldown))
	return p
}

// Model returns the encoder model name stored alongside document vectors.
func (p *Provider) Model() string { return p.opts.Model }

// Dimensions returns the expected vector length.
func (p *Provider) Dimensions() int { return p.opts.Dimensions }

// Loaded reports whether the encoder has been built.
func (p *Provider) Loaded() bool { return p.encoders.Loaded() }

// EmbedQuery encodes search text with the query instruction.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, func(e *encoders) domain.Embedder { return e.query })
}

// EmbedDocument encodes article text with the document instruction.
func (p *Provider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, func(e *encoders) domain.Embedder { return e.document })
}

// EmbedDocuments encodes several article texts in as few API calls as possible.
// Vectors are returned in input order.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	enc, err := p.encoders.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}

	res, err := enc.document.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(res.Embeddings), len(texts))
	}
	for i, v := range res.Embeddings {
		if err := p.checkDims(v); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	return res.Embeddings, nil
}

// HealthCheck loads the encoder if needed and pings the remote API.
func (p *Provider) HealthCheck(ctx context.Context) error {
	enc, err := p.encoders.GetOrCreate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if hc, ok := enc.base.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
		}
	}
	return nil
}

func (p *Provider) embed(
	ctx context.Context, text string, pick func(*encoders) domain.Embedder,
) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Malformed("text to embed is empty")
	}

	enc, err := p.encoders.GetOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}

	res, err := pick(enc).Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
	}
	if err := p.checkDims(res.Embedding); err != nil {
		return nil, err
	}
	return res.Embedding, nil
}

func (p *Provider) checkDims(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrEmbedding)
	}
	if p.opts.Dimensions > 0 && len(v) != p.opts.Dimensions {
		return fmt.Errorf("%w: got %d dimensions, want %d: %w",
			domain.ErrEmbedding, len(v), p.opts.Dimensions, domain.ErrVectorDimMismatch)
	}
	return nil
}

// IsRateLimited reports whether err came from a provider rate limit.
func IsRateLimited(err error) bool { return errors.Is(err, domain.ErrRateLimited) }
