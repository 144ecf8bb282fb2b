package vocab

import (
	"strings"
	"unicode"
)

// Normalize uppercases text, removes every rune that is not a letter, digit
// or whitespace, and splits the result into words. It never returns empty
// tokens.
func Normalize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, text)
	return strings.Fields(cleaned)
}
