package highlights

import (
	"strings"
	"unicode"
)

const (
	keywordWeight = 1.5
	densityWeight = 2.0
	boundaryBonus = 0.75
)

// Small function-word list; enough to separate filler from content for
// candidate pre-ranking without dragging in a full NLP dependency.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "i": {}, "if": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "just": {}, "like": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "she": {}, "so": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "then": {}, "there": {}, "they": {},
	"this": {}, "to": {}, "was": {}, "we": {}, "were": {}, "what": {},
	"when": {}, "which": {}, "who": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

// Score rates a candidate window's text as a non-negative float.
// Components: configured keyword occurrences, lexical density (share of
// non-stopword tokens), and a bonus when the window starts and ends on a
// sentence boundary. Deterministic for identical input.
func Score(text string, keywords []string) float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	lower := strings.ToLower(t)

	var s float64
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		s += float64(strings.Count(lower, kw)) * keywordWeight
	}

	s += lexicalDensity(lower) * densityWeight
	s += boundaryScore(t)
	if s < 0 {
		s = 0
	}
	return s
}

func lexicalDensity(lower string) float64 {
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(tokens) == 0 {
		return 0
	}
	content := 0
	for _, tok := range tokens {
		if _, ok := stopwords[tok]; !ok {
			content++
		}
	}
	return float64(content) / float64(len(tokens))
}

// boundaryScore rewards windows that cut on sentence boundaries instead of
// mid-sentence: a capitalized first word and terminal punctuation each earn
// half the bonus.
func boundaryScore(t string) float64 {
	runes := []rune(t)
	var s float64
	if unicode.IsUpper(runes[0]) {
		s += boundaryBonus
	}
	switch runes[len(runes)-1] {
	case '.', '!', '?':
		s += boundaryBonus
	}
	return s
}
