package textnorm

import (
	"slices"
	"testing"
)

func TestFold(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Città", "citta"},
		{"PERCHÉ così", "perche cosi"},
		{"Beograd", "beograd"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("L'export serbo, +12% nel 2024!")
	want := []string{"l", "export", "serbo", "12", "nel", "2024"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
	if len(Tokens(" ,.! ")) != 0 {
		t.Error("expected no tokens for punctuation only")
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"a", "b", "a", "c", "b"})
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Unique = %v", got)
	}
}

func TestSpaced(t *testing.T) {
	if got := Spaced("Crescita  economica,\nin Serbia"); got != "crescita economica in serbia" {
		t.Errorf("Spaced = %q", got)
	}
}
