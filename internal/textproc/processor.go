// Package textproc provides the text normalization capabilities consumed by
// the source adapters: sentence segmentation and per-sentence tokenization.
//
// The adapters depend only on the Processor and Segmenter interfaces; the
// bundled implementations cover the domain conventions of materials and
// food-science abstracts (number folding, unit splitting, formula
// preservation). A different model-specific processor can be injected
// without touching the adapters.
package textproc

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxSentenceLen bounds the input accepted by the processor. Pathological
// records (binary garbage, concatenated tables) occasionally reach
// the pipeline; the processor rejects them instead of choking on them, and
// the adapter counts the whole record as unreadable.
const MaxSentenceLen = 100_000

// NumToken is the placeholder substituted for standalone numbers so that the
// classifier vocabulary does not explode with numerals.
const NumToken = "<nUm>"

// Processor normalizes one sentence into classifier-ready tokens.
//
// Implementations must be safe for concurrent use. A non-nil error means the
// sentence could not be processed at all; the caller must discard the whole
// record it belongs to (records are never partially normalized).
type Processor interface {
	// Process tokenizes and normalizes a single sentence. It returns the
	// normalized tokens and any recognized domain entities (chemical
	// formulas, material names) found in the sentence.
	Process(sentence string) (tokens []string, entities []string, err error)
}

// MaterialsProcessor is the default Processor. It lowercases prose tokens,
// folds standalone numbers into NumToken, splits units off quantities,
// preserves tokens that look like chemical formulas as-is (reporting them as
// entities), and keeps sentence-terminal punctuation as standalone tokens.
type MaterialsProcessor struct{}

// Compile-time check that MaterialsProcessor implements Processor.
var _ Processor = (*MaterialsProcessor)(nil)

// NewMaterialsProcessor creates the default materials text processor.
func NewMaterialsProcessor() *MaterialsProcessor {
	return &MaterialsProcessor{}
}

var (
	// tokenSplitRe splits a sentence into word, number, and punctuation runs.
	tokenSplitRe = regexp.MustCompile(`[^\s]+`)

	// numberRe matches standalone numbers, including signs, decimals,
	// exponents, and simple ranges.
	numberRe = regexp.MustCompile(`^[-+±]?\d+(\.\d+)?([eE][-+]?\d+)?%?$`)

	// quantityRe matches a number immediately followed by a unit
	// ("5mg", "37°C", "10mL"); the number and unit are split apart.
	quantityRe = regexp.MustCompile(`^([-+±]?\d+(?:\.\d+)?)([^\d\s]+)$`)

	// formulaRe is a heuristic for chemical formulas: element symbols with
	// optional counts, at least two characters, mixed case or digits
	// ("H2O", "CaCO3", "NaCl").
	formulaRe = regexp.MustCompile(`^([A-Z][a-z]?\d*){2,}$`)

	// strippable punctuation at token edges.
	edgePunct = "()[]{}<>.,;:!?\"'“”‘’"
)

// Process implements Processor.
func (p *MaterialsProcessor) Process(sentence string) ([]string, []string, error) {
	if len(sentence) > MaxSentenceLen {
		return nil, nil, fmt.Errorf("sentence of %d bytes exceeds processor limit: %w", len(sentence), errOverflow)
	}

	raw := tokenSplitRe.FindAllString(sentence, -1)
	tokens := make([]string, 0, len(raw))
	var entities []string

	for _, rawTok := range raw {
		// Sentence-terminal punctuation survives as its own token; the
		// classifier vocabulary was trained with it.
		terminal := ""
		if last := rawTok[len(rawTok)-1]; last == '.' || last == '!' || last == '?' {
			terminal = string(last)
		}

		tok := strings.Trim(rawTok, edgePunct)
		switch {
		case tok == "":
			// nothing but punctuation

		case numberRe.MatchString(tok):
			tokens = append(tokens, NumToken)

		// Split unit-bearing quantities into number + unit.
		case quantityRe.MatchString(tok) && !formulaRe.MatchString(tok):
			m := quantityRe.FindStringSubmatch(tok)
			tokens = append(tokens, NumToken, strings.ToLower(m[2]))

		// Formulas keep their casing and double as recognized entities.
		case formulaRe.MatchString(tok) && hasDigitOrLower(tok):
			tokens = append(tokens, tok)
			entities = append(entities, tok)

		default:
			tokens = append(tokens, strings.ToLower(tok))
		}

		if terminal != "" {
			tokens = append(tokens, terminal)
		}
	}

	return tokens, entities, nil
}

// hasDigitOrLower filters all-uppercase acronyms ("DNA", "HPLC") out of the
// formula heuristic.
func hasDigitOrLower(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) || unicode.IsLower(r) {
			return true
		}
	}
	return false
}
