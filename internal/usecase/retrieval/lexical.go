package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
	"github.com/freethrow/tanalyst/internal/domain/textnorm"
	searchrepo "github.com/freethrow/tanalyst/internal/repository/search"
)

// FuzzyOptions tunes approximate term matching.
type FuzzyOptions struct {
	// MaxEdits is the Levenshtein distance still counted as a match.
	MaxEdits int
	// PrefixLength runes must agree exactly before edits are allowed.
	// Terms no longer than this only match exactly.
	PrefixLength int
}

// IndexLexical runs fuzzy full-text search in the store.
type IndexLexical struct {
	index  textSearcher
	opts   FuzzyOptions
	logger *zap.Logger
}

// NewIndexLexical creates an index-backed lexical retriever.
func NewIndexLexical(index textSearcher, opts FuzzyOptions, logger *zap.Logger) *IndexLexical {
	return &IndexLexical{index: index, opts: opts, logger: logger}
}

// SearchText implements LexicalRetriever. A backend without keyword search
// yields an empty list, not an error.
func (r *IndexLexical) SearchText(
	ctx context.Context, query string, limit int, f filter.Expression,
) ([]result.Candidate, error) {
	if err := checkTextArgs(query, limit); err != nil {
		return nil, err
	}

	cands, err := r.index.Text(ctx, query, limit, f, searchrepo.TextOptions{
		MaxEdits:     r.opts.MaxEdits,
		PrefixLength: r.opts.PrefixLength,
	})
	if errors.Is(err, domain.ErrKeywordSearchNotSupported) {
		r.logger.Debug("Keyword search not supported by backend, lexical contribution is empty")
		return []result.Candidate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index text: %w", err)
	}
	return cands, nil
}

// Match weights of the in-memory scan.
const (
	exactWeight = 1.0
	fuzzyWeight = 0.5
	// DefaultTitleBoost multiplies matches found in the title.
	DefaultTitleBoost = 2.0
)

// FuzzyScan matches query terms against every article in memory, folding
// accents and tolerating small typos. Used when the store has no text index.
type FuzzyScan struct {
	corpus     TextCorpusReader
	opts       FuzzyOptions
	fields     []string
	titleBoost float64
}

// NewFuzzyScan creates an in-memory lexical retriever over the given text
// fields (article.Field* names). No fields selects the Italian title and
// content. titleBoost <= 0 selects DefaultTitleBoost.
func NewFuzzyScan(corpus TextCorpusReader, opts FuzzyOptions, fields []string, titleBoost float64) *FuzzyScan {
	if len(fields) == 0 {
		fields = []string{article.FieldTitleIT, article.FieldContentIT}
	}
	if titleBoost <= 0 {
		titleBoost = DefaultTitleBoost
	}
	return &FuzzyScan{corpus: corpus, opts: opts, fields: fields, titleBoost: titleBoost}
}

// SearchText implements LexicalRetriever. Each query term contributes its
// best weighted match across the configured fields; raw scores are then
// divided by the best article's score. Fields are read as stored, so an
// untranslated article never matches the Italian fields.
func (r *FuzzyScan) SearchText(
	ctx context.Context, query string, limit int, f filter.Expression,
) ([]result.Candidate, error) {
	if err := checkTextArgs(query, limit); err != nil {
		return nil, err
	}

	terms := textnorm.Unique(textnorm.Tokens(query))
	if len(terms) == 0 {
		return []result.Candidate{}, nil
	}

	docs, err := r.corpus.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	var hits []scored
	sets := make([]map[string]struct{}, len(r.fields))
	for i := range docs {
		a := &docs[i]
		if !f.Matches(a) {
			continue
		}
		empty := true
		for j, name := range r.fields {
			sets[j] = tokenSet(a.Text(name))
			empty = empty && len(sets[j]) == 0
		}
		if empty {
			continue
		}

		var total float64
		for _, term := range terms {
			var best float64
			for j, name := range r.fields {
				w := r.match(term, sets[j])
				if article.IsTitleField(name) {
					w *= r.titleBoost
				}
				best = max(best, w)
			}
			total += best
		}
		if total > 0 {
			hits = append(hits, scored{a: *a, score: total})
		}
	}

	return result.Rescore(rankScored(hits, limit)), nil
}

// match returns the weight of the best match of term among tokens.
func (r *FuzzyScan) match(term string, tokens map[string]struct{}) float64 {
	if _, ok := tokens[term]; ok {
		return exactWeight
	}
	if r.opts.MaxEdits <= 0 {
		return 0
	}
	termRunes := []rune(term)
	if len(termRunes) <= r.opts.PrefixLength {
		return 0
	}
	prefix := string(termRunes[:r.opts.PrefixLength])
	for tok := range tokens {
		if !strings.HasPrefix(tok, prefix) {
			continue
		}
		if abs(len([]rune(tok))-len(termRunes)) > r.opts.MaxEdits {
			continue
		}
		if levenshtein.ComputeDistance(term, tok) <= r.opts.MaxEdits {
			return fuzzyWeight
		}
	}
	return 0
}

func tokenSet(s string) map[string]struct{} {
	toks := textnorm.Tokens(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func checkTextArgs(query string, limit int) error {
	if strings.TrimSpace(query) == "" {
		return domain.Malformed("query is required")
	}
	if limit <= 0 {
		return domain.Malformed("limit must be positive, got %d", limit)
	}
	return nil
}
