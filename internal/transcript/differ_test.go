package transcript_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/signflow/internal/transcript"
)

func TestExtractNewWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous string
		current  string
		want     []string
	}{
		{"first text", "", "Hello", []string{"HELLO"}},
		{"blank previous", "   ", "hello world", []string{"HELLO", "WORLD"}},
		{"growth", "Hello", "Hello world", []string{"WORLD"}},
		{"growth with punctuation", "Hello.", "Hello. How are you?", []string{"HOW", "ARE", "YOU"}},
		{"case-insensitive prefix", "hello", "HELLO world", []string{"WORLD"}},
		{"surrounding whitespace", "  hello ", "hello world  ", []string{"WORLD"}},
		{"unchanged", "Hello world", "Hello world", nil},
		{"only whitespace added", "Hello", "Hello   ", nil},
		{"only punctuation added", "Hello", "Hello!", nil},
		{"reset", "Hello world", "Good morning", []string{"GOOD", "MORNING"}},
		{"shrink is a reset", "Hello world", "Hello", []string{"HELLO"}},
		{"empty current", "Hello", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := transcript.ExtractNewWords(tc.previous, tc.current)
			if !slices.Equal(got, tc.want) {
				t.Errorf("ExtractNewWords(%q, %q) = %q, want %q", tc.previous, tc.current, got, tc.want)
			}
		})
	}
}

func TestExtractNewWords_Idempotent(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "hello", "The environment is very nice."} {
		if got := transcript.ExtractNewWords(s, s); len(got) != 0 {
			t.Errorf("ExtractNewWords(%q, %q) = %q, want empty", s, s, got)
		}
	}
}

func TestExtractNewWords_GrowthConcatenates(t *testing.T) {
	t.Parallel()
	steps := []string{"I", "I want", "I want to go", "I want to go home today"}

	var (
		prev string
		all  []string
	)
	for _, s := range steps {
		all = append(all, transcript.ExtractNewWords(prev, s)...)
		prev = s
	}
	want := transcript.ExtractNewWords("", steps[len(steps)-1])
	if !slices.Equal(all, want) {
		t.Errorf("incremental = %q, want %q", all, want)
	}
}

func TestCursor(t *testing.T) {
	t.Parallel()
	var c transcript.Cursor

	if got := c.Advance("Hello"); !slices.Equal(got, []string{"HELLO"}) {
		t.Errorf("first Advance = %q", got)
	}
	if c.Pending("Hello") {
		t.Error("Pending should be false for processed text")
	}
	if !c.Pending("Hello world") {
		t.Error("Pending should be true for grown text")
	}
	if got := c.Advance("Hello world"); !slices.Equal(got, []string{"WORLD"}) {
		t.Errorf("second Advance = %q", got)
	}
	if c.Last() != "Hello world" {
		t.Errorf("Last() = %q", c.Last())
	}

	c.Reset()
	if got := c.Advance("Hello world"); !slices.Equal(got, []string{"HELLO", "WORLD"}) {
		t.Errorf("Advance after Reset = %q", got)
	}
}
