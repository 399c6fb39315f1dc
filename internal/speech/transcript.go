package speech

import "strings"

// Transcript accumulates the segments of one capture. Final segments are
// appended; an interim segment replaces the previous interim.
type Transcript struct {
	finals  []string
	interim string
}

// Apply folds seg into the transcript.
func (t *Transcript) Apply(seg Segment) {
	text := strings.TrimSpace(seg.Text)
	if !seg.Final {
		t.interim = text
		return
	}
	if text != "" {
		t.finals = append(t.finals, text)
	}
	t.interim = ""
}

// Final returns the finalized text only.
func (t *Transcript) Final() string {
	return strings.Join(t.finals, " ")
}

// Interim returns the pending interim text.
func (t *Transcript) Interim() string {
	return t.interim
}

// Text returns finals followed by the pending interim.
func (t *Transcript) Text() string {
	if t.interim == "" {
		return t.Final()
	}
	if len(t.finals) == 0 {
		return t.interim
	}
	return t.Final() + " " + t.interim
}

// Empty reports whether there is no non-whitespace text.
func (t *Transcript) Empty() bool {
	return strings.TrimSpace(t.Text()) == ""
}

// Reset discards everything.
func (t *Transcript) Reset() {
	t.finals = nil
	t.interim = ""
}
