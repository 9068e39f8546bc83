package service

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters tuned for chunk-sized documents.
const (
	DefaultBM25K1 = 1.5
	DefaultBM25B  = 0.75
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {},
}

// tokenize lowercases the text and splits it on non-alphanumeric runes,
// dropping stopwords and tokens shorter than two characters.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		if len([]rune(tok)) < 2 {
			return
		}
		if _, ok := stopwords[tok]; ok {
			return
		}
		tokens = append(tokens, tok)
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// bm25Index scores a query against a fixed candidate pool. All corpus
// statistics (document frequencies, lengths, average length) are
// derived from the pool alone, so scores are relative to the pool
// rather than the full collection. That keeps keyword scoring free of
// a separate inverted-index subsystem at the cost of cross-query
// comparability, which nothing downstream relies on.
type bm25Index struct {
	termFreqs  []map[string]int
	docFreqs   map[string]int
	docLengths []int
	avgDocLen  float64
	k1         float64
	b          float64
}

// newBM25Index indexes the candidate texts.
func newBM25Index(texts []string, k1, b float64) *bm25Index {
	idx := &bm25Index{
		termFreqs:  make([]map[string]int, len(texts)),
		docFreqs:   make(map[string]int),
		docLengths: make([]int, len(texts)),
		k1:         k1,
		b:          b,
	}

	total := 0
	for i, text := range texts {
		terms := tokenize(text)
		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		for term := range freqs {
			idx.docFreqs[term]++
		}
		idx.termFreqs[i] = freqs
		idx.docLengths[i] = len(terms)
		total += len(terms)
	}
	if len(texts) > 0 {
		idx.avgDocLen = float64(total) / float64(len(texts))
	}
	return idx
}

// Score returns one BM25 score per indexed text for the query.
func (idx *bm25Index) Score(query string) []float64 {
	scores := make([]float64, len(idx.termFreqs))
	if idx.avgDocLen == 0 {
		return scores
	}

	n := float64(len(idx.termFreqs))
	for _, term := range tokenize(query) {
		df, ok := idx.docFreqs[term]
		if !ok {
			continue
		}
		idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for i, freqs := range idx.termFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			docLen := float64(idx.docLengths[i])
			sat := (tf * (idx.k1 + 1)) / (tf + idx.k1*(1-idx.b+idx.b*(docLen/idx.avgDocLen)))
			scores[i] += idf * sat
		}
	}
	return scores
}

// minMaxNormalize maps scores into [0,1] within the slice. A flat
// slice (all scores equal) normalizes to zeros so the keyword signal
// contributes nothing rather than a constant boost.
func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if max-min < 1e-12 {
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}
