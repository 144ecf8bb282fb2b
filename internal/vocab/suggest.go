package vocab

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// minSuggestScore is the Jaro-Winkler similarity below which a vocabulary
// word is not offered as a suggestion.
const minSuggestScore = 0.75

// phoneticBonus is added to the score of candidates that share a Double
// Metaphone code with the input.
const phoneticBonus = 0.05

// Suggestion is a ranked near-match for a word outside the vocabulary.
type Suggestion struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// Suggest returns up to n vocabulary words that look or sound like word,
// best first. An exact vocabulary hit is returned alone with score 1.
//
// Suggest is a diagnostic aid for vocabulary authors and tools; translation
// itself never uses it.
func (s *Store) Suggest(word string, n int) []Suggestion {
	w := strings.ToUpper(strings.TrimSpace(word))
	if w == "" || n <= 0 {
		return nil
	}
	if s.Contains(w) {
		return []Suggestion{{Word: w, Score: 1}}
	}

	wp, ws := matchr.DoubleMetaphone(w)

	var out []Suggestion
	for _, cand := range s.words {
		score := matchr.JaroWinkler(w, cand, false)
		cp, cs := matchr.DoubleMetaphone(cand)
		if sharesCode(wp, ws, cp, cs) {
			score += phoneticBonus
		}
		if score > 1 {
			score = 1
		}
		if score >= minSuggestScore {
			out = append(out, Suggestion{Word: cand, Score: score})
		}
	}

	slices.SortFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Word, b.Word)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sharesCode(ap, as, bp, bs string) bool {
	for _, a := range []string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
