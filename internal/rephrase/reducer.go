package rephrase

import (
	"strings"

	"github.com/MrWong99/signflow/internal/vocab"
)

// Lexicon is the view of the vocabulary the rephrase package needs.
// [*vocab.Store] implements it.
type Lexicon interface {
	Contains(word string) bool
	Substitute(word string) (string, bool)
	Words() []string
}

// Reducer maps a sentence onto the vocabulary with fixed local rules. It
// needs no network, never fails and always returns the same words for the
// same sentence.
type Reducer struct {
	lex Lexicon
}

// NewReducer returns a [Reducer] over lex.
func NewReducer(lex Lexicon) *Reducer {
	return &Reducer{lex: lex}
}

// Reduce normalises sentence and maps each word onto the vocabulary. Words
// that cannot be mapped are dropped; the order of the rest is preserved.
func (r *Reducer) Reduce(sentence string) []string {
	var out []string
	for _, w := range vocab.Normalize(sentence) {
		if m, ok := r.match(w); ok {
			out = append(out, m)
		}
	}
	return out
}

// ReduceText is [Reducer.Reduce] joined with single spaces.
func (r *Reducer) ReduceText(sentence string) string {
	return strings.Join(r.Reduce(sentence), " ")
}

// match applies the rules in order: direct hit, substitution table, then
// the plural, past tense and progressive suffix strips. The first rule that
// yields a vocabulary word wins.
func (r *Reducer) match(w string) (string, bool) {
	if r.lex.Contains(w) {
		return w, true
	}
	if to, ok := r.lex.Substitute(w); ok && r.lex.Contains(to) {
		return to, true
	}
	n := len(w)
	if n > 2 && strings.HasSuffix(w, "S") {
		if base := w[:n-1]; r.lex.Contains(base) {
			return base, true
		}
	}
	if n > 3 && strings.HasSuffix(w, "ED") {
		if base := w[:n-2]; r.lex.Contains(base) {
			return base, true
		}
		if base := w[:n-1]; r.lex.Contains(base) {
			return base, true
		}
	}
	if n > 4 && strings.HasSuffix(w, "ING") {
		if base := w[:n-3]; r.lex.Contains(base) {
			return base, true
		}
	}
	return "", false
}
