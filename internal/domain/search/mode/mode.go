package mode

import "strings"

// Mode is the retrieval strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid fuses vector and lexical rankings.
	Hybrid  Mode = "hybrid"
	Vector  Mode = "vector"
	Lexical Mode = "lexical"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Vector || m == Lexical
}

// Parse accepts a mode name case-insensitively, including the
// "semantic" and "keyword" aliases. Empty input yields Hybrid.
func Parse(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return Hybrid, true
	case "vector", "semantic":
		return Vector, true
	case "lexical", "keyword", "text":
		return Lexical, true
	}
	return "", false
}
