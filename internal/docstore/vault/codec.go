package vault

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/voxnote/internal/models"
)

const delim = "---\n"

var errNoFrontmatter = errors.New("vault: missing frontmatter")

// frontmatter is the YAML header of a note file. The body after the closing
// delimiter is the note content, byte for byte.
type frontmatter struct {
	ID         string `yaml:"id"`
	Owner      string `yaml:"owner"`
	Title      string `yaml:"title"`
	Bookmarked bool   `yaml:"bookmarked"`
	Created    string `yaml:"created"`
	Updated    string `yaml:"updated"`
}

func encodeNote(n models.Note) ([]byte, error) {
	fm := frontmatter{
		ID:         n.ID,
		Owner:      n.OwnerID,
		Title:      n.Title,
		Bookmarked: n.IsBookmarked,
		Created:    n.CreatedAt.UTC().Format(time.RFC3339Nano),
		Updated:    n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("vault: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.Write(header)
	buf.WriteString(delim)
	buf.WriteString(n.Content)
	return buf.Bytes(), nil
}

// decodeNote splits the YAML frontmatter from the body and maps both onto
// a Note.
func decodeNote(data []byte) (models.Note, error) {
	if !bytes.HasPrefix(data, []byte(delim)) {
		return models.Note{}, errNoFrontmatter
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return models.Note{}, errNoFrontmatter
	}
	header := rest[:idx+1]
	body := rest[idx+1+len(delim):]

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return models.Note{}, fmt.Errorf("vault: decode frontmatter: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, fm.Created)
	if err != nil {
		return models.Note{}, fmt.Errorf("vault: created: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, fm.Updated)
	if err != nil {
		return models.Note{}, fmt.Errorf("vault: updated: %w", err)
	}
	return models.Note{
		ID:           fm.ID,
		OwnerID:      fm.Owner,
		Title:        fm.Title,
		Content:      string(body),
		IsBookmarked: fm.Bookmarked,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}
