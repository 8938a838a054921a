package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

// Segmenter splits raw abstract text into an ordered, finite sequence of
// sentences. Implementations must be safe for concurrent use and must return
// a fresh slice on every call so the sequence is restartable.
type Segmenter interface {
	Sentences(text string) []string
}

// RuleSegmenter is the default Segmenter. It splits on sentence-final
// punctuation followed by whitespace and an upper-case or numeric start,
// while holding together the abbreviation patterns common in scientific
// prose ("et al.", "Fig. 3", "e.g.", decimal numbers).
type RuleSegmenter struct{}

// Compile-time check that RuleSegmenter implements Segmenter.
var _ Segmenter = (*RuleSegmenter)(nil)

// NewRuleSegmenter creates the default rule-based sentence segmenter.
func NewRuleSegmenter() *RuleSegmenter {
	return &RuleSegmenter{}
}

// nonBreaking lists lowercase token suffixes after which a period does not
// end a sentence.
var nonBreaking = map[string]bool{
	"al":     true, // et al.
	"fig":    true,
	"figs":   true,
	"eq":     true,
	"eqs":    true,
	"e.g":    true,
	"i.e":    true,
	"cf":     true,
	"vs":     true,
	"ca":     true,
	"approx": true,
	"no":     true,
	"ref":    true,
	"refs":   true,
}

var sentenceEndRe = regexp.MustCompile(`[.!?]+[\s]+`)

// Sentences implements Segmenter.
func (s *RuleSegmenter) Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		candidate := strings.TrimSpace(text[start:loc[1]])
		if candidate == "" {
			continue
		}
		if !breaksHere(candidate, text, loc[1]) {
			continue
		}
		sentences = append(sentences, candidate)
		start = loc[1]
	}

	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// breaksHere decides whether the punctuation that ended candidate is a real
// sentence boundary given what follows at offset next in text.
func breaksHere(candidate, text string, next int) bool {
	// The following sentence should open with an upper-case letter, a digit
	// or an opening bracket. Anything else suggests a mid-sentence period.
	if next < len(text) {
		r := firstRune(text[next:])
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) && r != '(' && r != '[' && r != '"' {
			return false
		}
	}

	trimmed := strings.TrimRight(candidate, ".!? ")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], "(["))
	if nonBreaking[last] {
		return false
	}
	// Single capital letters are almost always initials ("J. Smith").
	if len(last) == 1 && unicode.IsLetter(rune(last[0])) {
		return false
	}
	return true
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
