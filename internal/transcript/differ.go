// Package transcript extracts the newly spoken part of a transcript that
// grows as speech recognition refines it.
//
// A live transcript is usually the previous text plus a few more words. When
// recognition restarts, the new text no longer extends the old one and is
// treated as entirely new.
package transcript

import (
	"strings"

	"github.com/MrWong99/signflow/internal/vocab"
)

// ExtractNewWords returns the normalised words of current that were not
// already present in previous.
//
// The prefix check ignores case and surrounding whitespace. When current
// does not extend previous, or previous is blank, every word of current is
// returned. When nothing was added the result is empty.
func ExtractNewWords(previous, current string) []string {
	prev := strings.TrimSpace(previous)
	cur := strings.TrimSpace(current)
	if prev == "" {
		return vocab.Normalize(cur)
	}
	if len(cur) < len(prev) || !strings.EqualFold(cur[:len(prev)], prev) {
		return vocab.Normalize(cur)
	}
	return vocab.Normalize(cur[len(prev):])
}

// Cursor remembers the transcript text that has already been handed out for
// translation. It is not safe for concurrent use; the owning session
// serialises access.
type Cursor struct {
	last string
}

// Advance returns the words of current that are new since the last
// advance and moves the cursor to current.
func (c *Cursor) Advance(current string) []string {
	words := ExtractNewWords(c.last, current)
	c.last = current
	return words
}

// Pending reports whether current holds words the cursor has not handed out.
func (c *Cursor) Pending(current string) bool {
	return len(ExtractNewWords(c.last, current)) > 0
}

// Last returns the text the cursor was last advanced to.
func (c *Cursor) Last() string {
	return c.last
}

// Reset forgets all processed text.
func (c *Cursor) Reset() {
	c.last = ""
}
