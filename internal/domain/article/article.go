package article

import (
	"strings"
	"time"
)

// Status is the curation workflow state. Retrieval only reads it.
type Status string

// Workflow states.
const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusDiscarded Status = "DISCARDED"
	StatusSent      Status = "SENT"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDiscarded, StatusSent:
		return true
	}
	return false
}

// Embedding is a stored document vector with the model that produced it.
type Embedding struct {
	Vector    []float32
	Model     string
	CreatedAt time.Time
}

// Eligible reports whether e can take part in vector retrieval for an
// encoder of the given dimensionality. A zero vector never can.
func (e *Embedding) Eligible(dims int) bool {
	if e == nil || len(e.Vector) == 0 {
		return false
	}
	if dims > 0 && len(e.Vector) != dims {
		return false
	}
	for _, x := range e.Vector {
		if x != 0 {
			return true
		}
	}
	return false
}

// Article is a scraped, translated business article.
type Article struct {
	ID          string
	TitleEN     string
	TitleIT     string
	ContentEN   string
	ContentIT   string
	Sector      string
	Source      string
	URL         string
	Status      Status
	ArticleDate time.Time
	ScrapedAt   time.Time
	Embedding   *Embedding
}

// HasSearchText reports whether the article carries translated text in the
// search language.
func (a *Article) HasSearchText() bool {
	return strings.TrimSpace(a.TitleIT) != "" || strings.TrimSpace(a.ContentIT) != ""
}

// SearchTitle returns the title in the search language, falling back to English.
func (a *Article) SearchTitle() string {
	if a.TitleIT != "" {
		return a.TitleIT
	}
	return a.TitleEN
}

// SearchContent returns the content in the search language, falling back to English.
func (a *Article) SearchContent() string {
	if a.ContentIT != "" {
		return a.ContentIT
	}
	return a.ContentEN
}

// EmbeddingText builds the text a document embedding is computed from.
func (a *Article) EmbeddingText() string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(a.SearchTitle())
	b.WriteString("\nContent: ")
	b.WriteString(a.SearchContent())
	if a.Sector != "" {
		b.WriteString("\nSector: ")
		b.WriteString(a.Sector)
	}
	return b.String()
}
