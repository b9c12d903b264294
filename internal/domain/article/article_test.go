package article

import "testing"

func TestEmbedding_Eligible(t *testing.T) {
	tests := []struct {
		name string
		emb  *Embedding
		dims int
		want bool
	}{
		{"nil", nil, 3, false},
		{"empty vector", &Embedding{}, 3, false},
		{"matching dims", &Embedding{Vector: []float32{1, 0, 0}}, 3, true},
		{"shorter", &Embedding{Vector: []float32{1, 0}}, 3, false},
		{"longer", &Embedding{Vector: []float32{1, 0, 0, 0}}, 3, false},
		{"dims unset", &Embedding{Vector: []float32{1}}, 0, true},
		{"zero norm", &Embedding{Vector: []float32{0, 0, 0}}, 3, false},
		{"negative component", &Embedding{Vector: []float32{0, -0.5, 0}}, 3, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.emb.Eligible(tc.dims); got != tc.want {
				t.Errorf("Eligible(%d) = %v, want %v", tc.dims, got, tc.want)
			}
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusDiscarded, StatusSent} {
		if !s.IsValid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if Status("ARCHIVED").IsValid() {
		t.Error("expected ARCHIVED to be invalid")
	}
}

func TestArticle_SearchFieldsFallback(t *testing.T) {
	a := Article{TitleEN: "Growth", ContentEN: "Economy grows"}
	if a.SearchTitle() != "Growth" {
		t.Errorf("unexpected title %q", a.SearchTitle())
	}
	if a.HasSearchText() {
		t.Error("expected no Italian search text")
	}

	a.TitleIT = "Crescita"
	if a.SearchTitle() != "Crescita" {
		t.Errorf("unexpected title %q", a.SearchTitle())
	}
	if !a.HasSearchText() {
		t.Error("expected Italian search text")
	}
}

func TestArticle_EmbeddingText(t *testing.T) {
	a := Article{TitleIT: "Crescita", ContentIT: "Il PIL cresce", Sector: "ECONOMY"}
	want := "Title: Crescita\nContent: Il PIL cresce\nSector: ECONOMY"
	if got := a.EmbeddingText(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	a.Sector = ""
	want = "Title: Crescita\nContent: Il PIL cresce"
	if got := a.EmbeddingText(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestArticle_TextHasNoFallback(t *testing.T) {
	a := Article{TitleEN: "Growth", ContentIT: "Crescita", Sector: "energy"}
	tests := map[string]string{
		FieldTitleIT:   "",
		FieldTitleEN:   "Growth",
		FieldContentIT: "Crescita",
		FieldContentEN: "",
		FieldSector:    "",
	}
	for name, want := range tests {
		if got := a.Text(name); got != want {
			t.Errorf("Text(%q) = %q, want %q", name, got, want)
		}
	}
	if IsTextField(FieldSector) || !IsTextField(FieldContentEN) {
		t.Error("IsTextField misclassifies fields")
	}
	if !IsTitleField(FieldTitleIT) || IsTitleField(FieldContentIT) {
		t.Error("IsTitleField misclassifies fields")
	}
}
