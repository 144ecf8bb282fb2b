// Package vocab holds the fixed sign vocabulary: the mapping from canonical
// uppercase words to animation references, plus the curated substitution
// table used by the rule-based reducer.
//
// A [Store] is immutable after construction and safe for concurrent use.
package vocab

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Entry is a single vocabulary word and the animation it maps to.
type Entry struct {
	// Word is the canonical uppercase form.
	Word string

	// MediaRef locates the animation. Relative refs are resolved against the
	// store's base URL; absolute http(s) URLs are used as-is.
	MediaRef string
}

// Substitution maps a word outside the vocabulary onto a vocabulary word.
// It only applies when From is absent from the vocabulary and To is present.
type Substitution struct {
	From string
	To   string
}

// Store is the read-only vocabulary.
type Store struct {
	baseURL string
	media   map[string]string
	subs    map[string]string
	words   []string
}

// New builds a Store from entries and substitutions. Words are uppercased.
// Empty words, empty media refs and duplicate words are rejected; all
// problems are reported in one joined error.
func New(baseURL string, entries []Entry, subs []Substitution) (*Store, error) {
	s := &Store{
		baseURL: baseURL,
		media:   make(map[string]string, len(entries)),
		subs:    make(map[string]string, len(subs)),
	}

	var errs []error
	for i, e := range entries {
		w := strings.ToUpper(strings.TrimSpace(e.Word))
		switch {
		case w == "":
			errs = append(errs, fmt.Errorf("entries[%d]: word is required", i))
			continue
		case strings.TrimSpace(e.MediaRef) == "":
			errs = append(errs, fmt.Errorf("entries[%d]: word %q has no media ref", i, w))
			continue
		}
		if _, dup := s.media[w]; dup {
			errs = append(errs, fmt.Errorf("entries[%d]: duplicate word %q", i, w))
			continue
		}
		s.media[w] = strings.TrimSpace(e.MediaRef)
		s.words = append(s.words, w)
	}
	for i, sub := range subs {
		from := strings.ToUpper(strings.TrimSpace(sub.From))
		to := strings.ToUpper(strings.TrimSpace(sub.To))
		if from == "" || to == "" {
			errs = append(errs, fmt.Errorf("substitutions[%d]: from and to are required", i))
			continue
		}
		s.subs[from] = to
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}

	slices.Sort(s.words)
	return s, nil
}

// Lookup returns the media reference for word.
func (s *Store) Lookup(word string) (string, bool) {
	ref, ok := s.media[strings.ToUpper(word)]
	return ref, ok
}

// Contains reports whether word is in the vocabulary.
func (s *Store) Contains(word string) bool {
	_, ok := s.media[strings.ToUpper(word)]
	return ok
}

// Words returns every vocabulary word, sorted. The caller owns the slice.
func (s *Store) Words() []string {
	return slices.Clone(s.words)
}

// Len returns the vocabulary size.
func (s *Store) Len() int {
	return len(s.words)
}

// Substitute returns the substitution target for word, if the table has one.
// It does not check whether the target is in the vocabulary.
func (s *Store) Substitute(word string) (string, bool) {
	to, ok := s.subs[strings.ToUpper(word)]
	return to, ok
}

// BaseURL returns the location relative media refs are resolved against.
func (s *Store) BaseURL() string {
	return s.baseURL
}

// MediaURL returns the fetchable location of word's animation.
func (s *Store) MediaURL(word string) (string, bool) {
	ref, ok := s.Lookup(word)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, true
	}
	return s.baseURL + ref, true
}

// WithBaseURL returns a copy of s that resolves media against baseURL.
func (s *Store) WithBaseURL(baseURL string) *Store {
	cp := *s
	cp.baseURL = baseURL
	return &cp
}
