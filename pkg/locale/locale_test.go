package locale

import (
	"testing"

	"github.com/charlie0129/saltlevel/pkg/store"
)

func TestMatch(t *testing.T) {
	tests := map[string]string{
		"en":      "en",
		"fr":      "fr",
		"fr-CA":   "fr",
		"en-GB":   "en",
		"de":      "en",
		"garbage": "en",
		"":        "en",
	}
	for in, want := range tests {
		if got := Match(in); got != want {
			t.Errorf("Match(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveRejectsUnsupported(t *testing.T) {
	s := store.NewMemory()
	if _, err := Save(s, "ja"); err == nil {
		t.Fatalf("expected unsupported language to be rejected")
	}
	if got := Load(s); got != Default {
		t.Fatalf("expected default language, got %q", got)
	}

	lang, err := Save(s, "fr-FR")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if lang != "fr" || Load(s) != "fr" {
		t.Fatalf("expected fr to be persisted, got %q / %q", lang, Load(s))
	}
}

func TestT(t *testing.T) {
	if got := T("en", AlertBody, 46.0, 31.6); got != "Distance 46.0cm (32% full)" {
		t.Fatalf("unexpected english body %q", got)
	}
	if got := T("fr", AlertTitle); got != "Niveau de sel bas" {
		t.Fatalf("unexpected french title %q", got)
	}
}
