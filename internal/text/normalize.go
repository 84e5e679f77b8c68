// Package text normalizes input text before it reaches the speech model.
//
// The model copes badly with typographic punctuation, stray control
// characters and ragged whitespace, so the normalizer flattens those to
// plain forms. No linguistic processing happens here; phonemization and
// chunking are the model's business.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const whitespaceRegexPattern = `\s+`

// Normalizer provides text normalization for synthesis input.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	punctReplacer     *strings.Replacer
}

// NewNormalizer creates a normalizer with its patterns and replacers
// compiled upfront.
func NewNormalizer() *Normalizer {
	punct := strings.NewReplacer(
		"—", "-",
		"–", "-",
		"‒", "-",
		"…", "...",
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	)

	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctReplacer:     punct,
	}
}

// Normalize cleans the input: control characters are dropped, typographic
// punctuation is flattened, whitespace is collapsed, and the result ends with
// sentence punctuation.
func (n *Normalizer) Normalize(input string) string {
	if input == "" {
		return input
	}

	cleaned := stripControl(input)
	cleaned = n.punctReplacer.Replace(cleaned)
	cleaned = n.whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	return ensureSentenceEnding(cleaned)
}

// stripControl removes control characters, keeping tabs and newlines as plain
// spaces so word boundaries survive.
func stripControl(input string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}

		if unicode.IsControl(r) {
			return -1
		}

		return r
	}, input)
}

// ensureSentenceEnding appends a period when the text does not already end
// with sentence punctuation.
func ensureSentenceEnding(input string) string {
	if input == "" {
		return input
	}

	lastRune, _ := utf8.DecodeLastRuneInString(input)
	switch lastRune {
	case '.', '!', '?', ';', ':', ',':
		return input
	default:
		return input + "."
	}
}
