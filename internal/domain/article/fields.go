package article

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"
)

// Stored field names of an article hash.
const (
	FieldID                 = "id"
	FieldTitleEN            = "title_en"
	FieldTitleIT            = "title_it"
	FieldContentEN          = "content_en"
	FieldContentIT          = "content_it"
	FieldSector             = "sector"
	FieldSource             = "source"
	FieldURL                = "url"
	FieldStatus             = "status"
	FieldArticleDate        = "article_date"
	FieldScrapedAt          = "scraped_at"
	FieldEmbedding          = "embedding"
	FieldEmbeddingModel     = "embedding_model"
	FieldEmbeddingCreatedAt = "embedding_created_at"
)

// DisplayFields are the fields projected into search results.
var DisplayFields = []string{
	FieldID, FieldTitleEN, FieldTitleIT, FieldContentEN, FieldContentIT,
	FieldSector, FieldSource, FieldURL, FieldStatus, FieldArticleDate,
}

// TextFields are the free-text fields a keyword search may target.
var TextFields = []string{FieldTitleIT, FieldContentIT, FieldTitleEN, FieldContentEN}

// IsTextField reports whether name is one of TextFields.
func IsTextField(name string) bool {
	switch name {
	case FieldTitleIT, FieldContentIT, FieldTitleEN, FieldContentEN:
		return true
	}
	return false
}

// IsTitleField reports whether name holds a title.
func IsTitleField(name string) bool {
	return name == FieldTitleIT || name == FieldTitleEN
}

// Text returns the free-text field name as stored, without language
// fallback. Other fields read as "".
func (a *Article) Text(name string) string {
	switch name {
	case FieldTitleIT:
		return a.TitleIT
	case FieldContentIT:
		return a.ContentIT
	case FieldTitleEN:
		return a.TitleEN
	case FieldContentEN:
		return a.ContentEN
	}
	return ""
}

// FromFields builds an article from a flat string field map.
// Unknown or malformed values are left zero. The embedding is decoded when present.
func FromFields(id string, f map[string]string) Article {
	if v := f[FieldID]; v != "" {
		id = v
	}
	a := Article{
		ID:          id,
		TitleEN:     f[FieldTitleEN],
		TitleIT:     f[FieldTitleIT],
		ContentEN:   f[FieldContentEN],
		ContentIT:   f[FieldContentIT],
		Sector:      f[FieldSector],
		Source:      f[FieldSource],
		URL:         f[FieldURL],
		Status:      Status(strings.ToUpper(f[FieldStatus])),
		ArticleDate: ParseTime(f[FieldArticleDate]),
		ScrapedAt:   ParseTime(f[FieldScrapedAt]),
	}
	if raw, ok := f[FieldEmbedding]; ok && raw != "" {
		a.Embedding = &Embedding{
			Vector:    DecodeVector(raw),
			Model:     f[FieldEmbeddingModel],
			CreatedAt: ParseTime(f[FieldEmbeddingCreatedAt]),
		}
	}
	return a
}

// ToFields flattens an article into its stored field map.
func ToFields(a *Article) map[string]string {
	f := map[string]string{
		FieldID:        a.ID,
		FieldTitleEN:   a.TitleEN,
		FieldTitleIT:   a.TitleIT,
		FieldContentEN: a.ContentEN,
		FieldContentIT: a.ContentIT,
		FieldSector:    a.Sector,
		FieldSource:    a.Source,
		FieldURL:       a.URL,
		FieldStatus:    string(a.Status),
	}
	if !a.ArticleDate.IsZero() {
		f[FieldArticleDate] = strconv.FormatInt(a.ArticleDate.Unix(), 10)
	}
	if !a.ScrapedAt.IsZero() {
		f[FieldScrapedAt] = strconv.FormatInt(a.ScrapedAt.Unix(), 10)
	}
	if a.Embedding != nil && len(a.Embedding.Vector) > 0 {
		for k, v := range EmbeddingFields(a.Embedding) {
			f[k] = v
		}
	}
	return f
}

// EmbeddingFields returns the stored fields for an embedding alone.
func EmbeddingFields(e *Embedding) map[string]string {
	return map[string]string{
		FieldEmbedding:          EncodeVector(e.Vector),
		FieldEmbeddingModel:     e.Model,
		FieldEmbeddingCreatedAt: strconv.FormatInt(e.CreatedAt.Unix(), 10),
	}
}

// ParseTime accepts unix seconds or RFC 3339. Anything else yields zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// EncodeVector packs a vector as little-endian float32 bytes, the layout
// FT.SEARCH expects for VECTOR fields.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// DecodeVector is the inverse of EncodeVector. Trailing partial bytes are dropped.
func DecodeVector(s string) []float32 {
	b := []byte(s)
	n := len(b) / 4
	if n == 0 {
		return nil
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
