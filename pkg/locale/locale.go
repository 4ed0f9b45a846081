// Package locale holds the user-facing strings of the device and the
// persisted UI language.
package locale

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/charlie0129/saltlevel/pkg/store"
)

const keyLang = "lang"

// Default is the language used when nothing else is configured.
const Default = "en"

var supported = []language.Tag{
	language.English, // first is the fallback
	language.French,
}

var matcher = language.NewMatcher(supported)

// Supported returns the supported language tags.
func Supported() []string {
	out := make([]string, 0, len(supported))
	for _, t := range supported {
		out = append(out, t.String())
	}
	return out
}

// Match returns the supported tag closest to tag, e.g. "fr-CA" gives "fr".
// Unknown or malformed tags give Default.
func Match(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return Default
	}
	_, idx, conf := matcher.Match(t)
	if conf == language.No {
		return Default
	}
	return supported[idx].String()
}

// Parse is like Match but rejects tags that do not match any supported
// language.
func Parse(tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	_, idx, conf := matcher.Match(t)
	if conf == language.No {
		return "", fmt.Errorf("unsupported language %q, supported: %v", tag, Supported())
	}
	return supported[idx].String(), nil
}

// Load returns the persisted UI language.
func Load(s store.Store) string {
	return Match(store.Load(s, store.NamespaceUI, keyLang, Default))
}

// Save validates and persists the UI language. It returns the normalized
// tag.
func Save(s store.Store, tag string) (string, error) {
	lang, err := Parse(tag)
	if err != nil {
		return "", err
	}
	if err := store.Save(s, store.NamespaceUI, keyLang, lang); err != nil {
		return "", err
	}
	return lang, nil
}
