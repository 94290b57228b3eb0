// Package parser turns a raw query string into the list of index terms to
// look up: the analyzed unigrams plus the n-grams derived from them.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
)

type QueryType int

const (
	// QueryOR ranks every document that matches any derived term.
	QueryOR QueryType = iota
	// QueryAND only ranks documents containing every query unigram.
	QueryAND
)

func (t QueryType) String() string {
	if t == QueryAND {
		return "and"
	}
	return "or"
}

// ParseMode reads the mode request parameter. Anything unrecognised is OR.
func ParseMode(s string) QueryType {
	if strings.EqualFold(strings.TrimSpace(s), "and") {
		return QueryAND
	}
	return QueryOR
}

type QueryPlan struct {
	RawQuery string
	Type     QueryType
	// Tokens are the analyzed unigrams in query order, duplicates kept.
	Tokens []string
	// Terms are the distinct unigrams then n-grams to look up.
	Terms []string
}

// Unigrams returns the distinct tokens in first-seen order.
func (p *QueryPlan) Unigrams() []string {
	return dedupe(p.Tokens)
}

// Parse analyzes query with the ingestion pipeline. A bare upper-case AND
// anywhere switches the plan to strict mode and is not itself a term;
// upper-case OR is accepted and ignored since OR is the default.
func Parse(analyzer *tokenizer.Analyzer, query string, mode QueryType) *QueryPlan {
	plan := &QueryPlan{RawQuery: query, Type: mode, Tokens: []string{}, Terms: []string{}}
	words := strings.Fields(query)
	kept := words[:0:0]
	for _, w := range words {
		switch w {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			continue
		}
		kept = append(kept, w)
	}
	plan.Tokens = analyzer.Query(strings.Join(kept, " "))
	if len(plan.Tokens) == 0 {
		return plan
	}
	terms := append([]string{}, plan.Tokens...)
	for _, n := range analyzer.NGramSizes() {
		terms = append(terms, tokenizer.NGrams(plan.Tokens, n)...)
	}
	plan.Terms = dedupe(terms)
	return plan
}

// CacheKey identifies plans that must produce identical results.
func (p *QueryPlan) CacheKey() string {
	return p.Type.String() + "|" + strings.Join(p.Tokens, " ")
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
