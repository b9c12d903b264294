package result

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/freethrow/tanalyst/internal/domain/article"
)

// Source is one raw record awaiting normalization. Each store shape gets
// its own adapter so core logic only ever sees a Candidate.
type Source interface {
	candidate() Candidate
}

// Normalize converts raw records to candidates with percentage scores and
// 1-based ranks by position. It never fails: bad scores become 0.
func Normalize(raw []Source) []Candidate {
	out := make([]Candidate, 0, len(raw))
	for _, src := range raw {
		if src == nil {
			continue
		}
		c := src.candidate()
		c.Score = Percent(c.RawScore)
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out
}

// Percent maps a raw score to [0, 100]: x100, clamped, NaN and Inf as 0.
func Percent(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return clamp(raw*100, 0, 100)
}

// Rescore divides raw scores by the highest raw score, so the best candidate
// reads 100, and recomputes display scores and ranks in place. Used for
// backend-native relevance (BM25, fuzzy sums) which has no fixed scale.
func Rescore(cands []Candidate) []Candidate {
	top := 0.0
	for i := range cands {
		top = math.Max(top, cands[i].RawScore)
	}
	for i := range cands {
		if top > 0 {
			cands[i].RawScore /= top
		} else {
			cands[i].RawScore = 0
		}
		cands[i].Score = Percent(cands[i].RawScore)
		cands[i].Rank = i + 1
	}
	return cands
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// --- Article adapter ---

type articleSource struct {
	a     article.Article
	score float64
}

// FromArticle adapts an in-memory article with its retriever score.
func FromArticle(a article.Article, score float64) Source {
	return articleSource{a: a, score: score}
}

func (s articleSource) candidate() Candidate {
	return Candidate{Article: s.a, RawScore: s.score}
}

// --- Store hash adapter ---

type hashSource struct {
	key    string
	fields map[string]string
	score  float64
}

// FromHash adapts a store projection. The id is taken from the "id" field
// or, failing that, from the key suffix after the last ':'.
func FromHash(key string, fields map[string]string, score float64) Source {
	return hashSource{key: key, fields: fields, score: score}
}

func (s hashSource) candidate() Candidate {
	id := s.key
	if i := strings.LastIndexByte(id, ':'); i >= 0 {
		id = id[i+1:]
	}
	a := article.FromFields(id, s.fields)
	// Projections never carry vectors downstream.
	a.Embedding = nil
	return Candidate{Article: a, RawScore: s.score}
}

// --- Generic map adapter ---

type mapSource map[string]any

// FromMap adapts a loosely typed document. The id is read from "_id" or
// "id"; the score from "score" as any numeric or numeric string.
func FromMap(m map[string]any) Source {
	return mapSource(m)
}

func (m mapSource) candidate() Candidate {
	a := article.Article{
		ID:          stringOf(m["_id"]),
		TitleEN:     stringOf(m[article.FieldTitleEN]),
		TitleIT:     stringOf(m[article.FieldTitleIT]),
		ContentEN:   stringOf(m[article.FieldContentEN]),
		ContentIT:   stringOf(m[article.FieldContentIT]),
		Sector:      stringOf(m[article.FieldSector]),
		Source:      stringOf(m[article.FieldSource]),
		URL:         stringOf(m[article.FieldURL]),
		Status:      article.Status(strings.ToUpper(stringOf(m[article.FieldStatus]))),
		ArticleDate: timeOf(m[article.FieldArticleDate]),
	}
	if a.ID == "" {
		a.ID = stringOf(m[article.FieldID])
	}
	score, _ := Coerce(m["score"])
	return Candidate{Article: a, RawScore: score}
}

// --- Candidate adapter ---

type candidateSource struct{ c Candidate }

// FromCandidate re-normalizes an existing candidate from its display score,
// so normalizing normalized output is stable.
func FromCandidate(c Candidate) Source {
	return candidateSource{c: c}
}

func (s candidateSource) candidate() Candidate {
	c := s.c
	c.RawScore = c.Score / 100
	return c
}

// Coerce converts an arbitrary score value to float64.
func Coerce(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case fmt.Stringer:
		return Coerce(x.String())
	}
	return 0, false
}

func stringOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func timeOf(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case int64:
		return time.Unix(x, 0).UTC()
	case string:
		return article.ParseTime(x)
	}
	return time.Time{}
}
