package tokenizer

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	apperrors "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/errors"
)

// tagWeights boosts terms by the most significant element enclosing them.
var tagWeights = map[string]float64{
	"title":  3,
	"h1":     2,
	"h2":     1.75,
	"h3":     1.5,
	"b":      1.25,
	"strong": 1.25,
	"a":      1.05,
	"i":      1.05,
	"em":     1.05,
	"h5":     1.05,
	"h6":     1.05,
}

var skippedTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// Features is what one crawled page contributes to the index.
type Features struct {
	// Terms maps unigram and n-gram terms to their weighted counts.
	Terms map[string]float64
	// Anchors maps absolute target URLs to the terms of links pointing there.
	Anchors map[string][]string
	Tokens  int
}

// Document extracts weighted terms and outgoing anchor terms from an HTML
// page. Link text belongs to the link target, so it is recorded in Anchors
// rather than in the page's own terms. It returns ErrNoContent when the page
// yields no terms.
func (a *Analyzer) Document(pageURL string, content []byte) (*Features, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", apperrors.ErrNoContent)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	w := &walker{analyzer: a, base: base, anchors: make(map[string][]string)}
	w.walk(root, 1, "")

	if len(w.tokens) == 0 {
		return nil, apperrors.ErrNoContent
	}
	terms := make(map[string]float64, len(w.tokens)*2)
	plain := make([]string, len(w.tokens))
	for i, tok := range w.tokens {
		terms[tok.Term] += tok.Weight
		plain[i] = tok.Term
	}
	for _, n := range a.ngramSizes {
		for i, gram := range NGrams(plain, n) {
			if len(gram) > a.maxTokenLength {
				continue
			}
			terms[gram] += w.tokens[i].Weight
		}
	}
	return &Features{Terms: terms, Anchors: w.anchors, Tokens: len(w.tokens)}, nil
}

type walker struct {
	analyzer *Analyzer
	base     *url.URL
	tokens   []Token
	anchors  map[string][]string
}

func (w *walker) walk(n *html.Node, weight float64, target string) {
	switch n.Type {
	case html.TextNode:
		tokens := w.analyzer.Tokenize(n.Data)
		if target != "" {
			for _, tok := range tokens {
				w.anchors[target] = append(w.anchors[target], tok.Term)
			}
			return
		}
		for _, tok := range tokens {
			tok.Position = len(w.tokens)
			tok.Weight = weight
			w.tokens = append(w.tokens, tok)
		}
		return
	case html.ElementNode:
		if _, skip := skippedTags[n.Data]; skip {
			return
		}
		if boost, ok := tagWeights[n.Data]; ok && boost > weight {
			weight = boost
		}
		if n.Data == "a" && target == "" {
			target = w.resolve(attr(n, "href"))
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, weight, target)
	}
}

// resolve turns an href into an absolute http(s) URL without fragment, or ""
// when the link cannot be attributed to a crawlable page.
func (w *walker) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || w.base == nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := w.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// CanonicalURL strips the fragment and lowercases the host so page URLs and
// resolved anchor targets compare equal. Unparseable input is returned
// unchanged.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
