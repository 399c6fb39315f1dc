package genai

import (
	"context"
	"fmt"
	"strings"
)

// Language is a translation target.
type Language string

const (
	Kannada  Language = "kannada"
	Hindi    Language = "hindi"
	Tamil    Language = "tamil"
	Telugu   Language = "telugu"
	English  Language = "english"
	Spanish  Language = "spanish"
	French   Language = "french"
	German   Language = "german"
	Japanese Language = "japanese"
)

// DefaultLanguage is the initial translation target.
const DefaultLanguage = Kannada

// Languages lists every supported target in display order.
func Languages() []Language {
	return []Language{Kannada, Hindi, Tamil, Telugu, English, Spanish, French, German, Japanese}
}

// ParseLanguage maps a case-insensitive name onto a Language.
func ParseLanguage(s string) (Language, error) {
	want := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range Languages() {
		if l == want {
			return l, nil
		}
	}
	return "", fmt.Errorf("genai: unsupported language %q", s)
}

// Translator asks a Generator for translations. It keeps no state between
// calls.
type Translator struct {
	gen Generator
}

// NewTranslator creates a Translator over gen.
func NewTranslator(gen Generator) *Translator {
	return &Translator{gen: gen}
}

// Translate returns text translated into lang. Blank text is returned as ""
// without calling the service.
func (t *Translator) Translate(ctx context.Context, text string, lang Language) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	prompt := fmt.Sprintf("strictly translate this text given to %s language only: %q", lang, text)
	return t.gen.Generate(ctx, prompt)
}
