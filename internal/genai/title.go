package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/voxnote/internal/apperr"
)

const maxTitleWords = 6

const titlePrompt = `Write a short descriptive title of 2 to 3 words for the note below.
Reply with the title only: no quotes, no punctuation at the end, no explanation.

Note:
`

// TitleGenerator asks a Generator for a short note title.
type TitleGenerator struct {
	gen Generator
}

// NewTitleGenerator creates a TitleGenerator over gen.
func NewTitleGenerator(gen Generator) *TitleGenerator {
	return &TitleGenerator{gen: gen}
}

// Title returns a cleaned title for text. Failures are returned as-is; the
// caller chooses the fallback.
func (t *TitleGenerator) Title(ctx context.Context, text string) (string, error) {
	reply, err := t.gen.Generate(ctx, titlePrompt+strings.TrimSpace(text))
	if err != nil {
		return "", err
	}
	title := cleanTitle(reply)
	if title == "" {
		return "", fmt.Errorf("genai: %w: unusable title %q", apperr.ErrGenerationFailed, reply)
	}
	return title, nil
}

// cleanTitle keeps the first non-empty line, strips markdown and quoting
// and caps the word count.
func cleanTitle(reply string) string {
	var line string
	for _, l := range strings.Split(reply, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.TrimLeft(line, "#*-> ")
	if i := strings.Index(strings.ToLower(line), "title:"); i == 0 {
		line = line[len("title:"):]
	}
	line = strings.Trim(line, " \t*_`\"'“”‘’.")

	words := strings.Fields(line)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}
