// Package tokenizer turns crawled HTML into weighted, stemmed index terms and
// turns free-text queries into the same terms. Text is NFKC-normalised,
// lower-cased, split on UAX#29 word boundaries and stemmed with the Snowball
// English stemmer. Ingestion and query analysis share this chain; if they
// ever diverge, query terms stop matching indexed terms.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
)

// NGramSeparator joins adjacent tokens into phrase terms.
const NGramSeparator = "_"

const defaultMaxTokenLength = 10000

// Token represents a single normalised term, its position in the token
// sequence and the structural weight of the element it appeared in.
type Token struct {
	Term     string
	Position int
	Weight   float64
}

// Analyzer holds the analysis settings shared by ingestion and query paths.
type Analyzer struct {
	ngramSizes     []int
	maxTokenLength int
}

func New(cfg config.AnalysisConfig) *Analyzer {
	maxLen := cfg.MaxTokenLength
	if maxLen <= 0 {
		maxLen = defaultMaxTokenLength
	}
	sizes := make([]int, len(cfg.NGramSizes))
	copy(sizes, cfg.NGramSizes)
	return &Analyzer{ngramSizes: sizes, maxTokenLength: maxLen}
}

// NGramSizes returns the phrase sizes this analyzer derives.
func (a *Analyzer) NGramSizes() []int {
	return a.ngramSizes
}

// Tokenize breaks plain text into stemmed tokens of weight 1, positioned
// from zero.
func (a *Analyzer) Tokenize(text string) []Token {
	terms := a.analyze(text)
	tokens := make([]Token, len(terms))
	for i, term := range terms {
		tokens[i] = Token{Term: term, Position: i, Weight: 1}
	}
	return tokens
}

// Query returns the stemmed unigram terms of a free-text query.
func (a *Analyzer) Query(text string) []string {
	return a.analyze(text)
}

func (a *Analyzer) analyze(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	segments := words.FromString(text)
	terms := make([]string, 0, len(text)/6)
	for segments.Next() {
		// UAX#29 keeps connectors such as '_' inside a word; the separator
		// must never appear in a unigram or it collides with phrase terms.
		for _, part := range strings.FieldsFunc(segments.Value(), isBoundary) {
			word := strings.Trim(part, "'’")
			if word == "" || len(word) > a.maxTokenLength || !isWord(word) {
				continue
			}
			stemmed := english.Stem(word, false)
			if stemmed == "" {
				continue
			}
			terms = append(terms, stemmed)
		}
	}
	return terms
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r) && r != '\'' && r != '’'
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// NGrams joins every run of n adjacent tokens with NGramSeparator.
func NGrams(tokens []string, n int) []string {
	if n < 2 || len(tokens) < n {
		return nil
	}
	grams := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		grams = append(grams, strings.Join(tokens[i:i+n], NGramSeparator))
	}
	return grams
}
