package slot

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule maps a set of phrases to one slot value.
type Rule[T any] struct {
	Value    T        `yaml:"value"`
	Patterns []string `yaml:"patterns"`
}

// Table is an ordered rule list with a fallback value.
type Table[T any] struct {
	Default T         `yaml:"default"`
	Rules   []Rule[T] `yaml:"rules"`
}

// wordSet holds normalized phrases that must match as whole words.
type wordSet map[string]struct{}

func newWordSet(words []string) wordSet {
	set := make(wordSet, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (s wordSet) has(w string) bool {
	_, ok := s[w]
	return ok
}

// Result is what every extractor returns.
type Result[T any] struct {
	Value    T
	Matched  bool
	Fallback bool
	// Pattern is the phrase that matched, empty on fallback.
	Pattern string
}

// Match returns the value of the first rule with a phrase present in utterance.
func (t Table[T]) Match(utterance string) Result[T] {
	return t.match(utterance, nil)
}

func (t Table[T]) match(utterance string, whole wordSet) Result[T] {
	text := padded(utterance)
	for _, rule := range t.Rules {
		if p, ok := firstPhrase(text, rule.Patterns, whole); ok {
			return Result[T]{Value: rule.Value, Matched: true, Pattern: p}
		}
	}
	return Result[T]{Value: t.Default, Fallback: true}
}

// Normalize lowercases, drops apostrophes and turns every other
// non-alphanumeric rune into a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func padded(s string) string {
	return " " + Normalize(s) + " "
}

// containsPhrase matches phrase as a substring starting at a word, so "cheap"
// finds "cheapish". Phrases of up to two runes and those in whole match
// complete words only. text must come from padded.
func containsPhrase(text, phrase string, whole wordSet) bool {
	p := Normalize(phrase)
	if p == "" {
		return false
	}
	if utf8.RuneCountInString(p) <= 2 || whole.has(p) {
		return strings.Contains(text, " "+p+" ")
	}
	return strings.Contains(text, " "+p)
}

func firstPhrase(text string, phrases []string, whole wordSet) (string, bool) {
	for _, p := range phrases {
		if containsPhrase(text, p, whole) {
			return p, true
		}
	}
	return "", false
}

// ContainsAny reports whether utterance contains any of phrases at a word start.
func ContainsAny(utterance string, phrases []string) bool {
	_, ok := firstPhrase(padded(utterance), phrases, nil)
	return ok
}
