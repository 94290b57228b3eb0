package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
)

func TestParse(t *testing.T) {
	analyzer := tokenizer.New(config.AnalysisConfig{NGramSizes: []int{2, 3}})
	cases := []struct {
		name   string
		query  string
		mode   QueryType
		tokens []string
		terms  []string
		typ    QueryType
	}{
		{
			name:   "bigrams and trigrams",
			query:  "Machine learning models",
			tokens: []string{"machin", "learn", "model"},
			terms:  []string{"machin", "learn", "model", "machin_learn", "learn_model", "machin_learn_model"},
		},
		{
			name:   "duplicates collapse",
			query:  "dog dog",
			tokens: []string{"dog", "dog"},
			terms:  []string{"dog", "dog_dog"},
		},
		{
			name:   "AND keyword",
			query:  "cats AND dogs",
			tokens: []string{"cat", "dog"},
			terms:  []string{"cat", "dog", "cat_dog"},
			typ:    QueryAND,
		},
		{
			name:   "lower-case and is a word",
			query:  "salt and pepper",
			tokens: []string{"salt", "and", "pepper"},
			terms:  []string{"salt", "and", "pepper", "salt_and", "and_pepper", "salt_and_pepper"},
		},
		{
			name:   "mode parameter",
			query:  "cat",
			mode:   QueryAND,
			tokens: []string{"cat"},
			terms:  []string{"cat"},
			typ:    QueryAND,
		},
		{
			name:   "punctuation only",
			query:  "?! --",
			tokens: []string{},
			terms:  []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := Parse(analyzer, tc.query, tc.mode)
			if diff := cmp.Diff(tc.tokens, plan.Tokens); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.terms, plan.Terms); diff != "" {
				t.Errorf("terms mismatch (-want +got):\n%s", diff)
			}
			if plan.Type != tc.typ {
				t.Errorf("type = %v, want %v", plan.Type, tc.typ)
			}
		})
	}
}

func TestCacheKeyNormalizes(t *testing.T) {
	analyzer := tokenizer.New(config.AnalysisConfig{})
	a := Parse(analyzer, "Running  Dogs", QueryOR)
	b := Parse(analyzer, "running dog", QueryOR)
	if a.CacheKey() != b.CacheKey() {
		t.Errorf("keys differ: %q vs %q", a.CacheKey(), b.CacheKey())
	}
	c := Parse(analyzer, "running dog", QueryAND)
	if a.CacheKey() == c.CacheKey() {
		t.Error("AND and OR plans share a cache key")
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode(" AND ") != QueryAND || ParseMode("or") != QueryOR || ParseMode("") != QueryOR {
		t.Error("ParseMode mismatch")
	}
}
