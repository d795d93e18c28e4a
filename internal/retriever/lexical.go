package retriever

import (
	"context"
	"math"
	"sort"

	"github.com/kailas-cloud/chatdex/internal/domain"
)

// DefaultMaxFeatures caps the lexical vocabulary size.
const DefaultMaxFeatures = 10000

// LexicalConfig tunes the TF-IDF index.
type LexicalConfig struct {
	MaxFeatures int // vocabulary cap, DefaultMaxFeatures when <= 0
	NgramMin    int // smallest n-gram size, 1 when <= 0
	NgramMax    int // largest n-gram size, 2 when <= 0
}

func (c *LexicalConfig) applyDefaults() {
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = DefaultMaxFeatures
	}
	if c.NgramMin <= 0 {
		c.NgramMin = 1
	}
	if c.NgramMax <= 0 {
		c.NgramMax = 2
	}
}

// posting is one document's weight for a vocabulary term.
type posting struct {
	doc    int
	weight float64
}

// Lexical scores documents by TF-IDF weighted term overlap. Term
// weighting is a pure function of the corpus, so identical corpus +
// identical query always produces identical results.
type Lexical struct {
	cfg LexicalConfig

	docs     []domain.Record
	vocab    map[string]int // term -> feature id
	idf      []float64      // feature id -> inverse document frequency
	postings [][]posting    // feature id -> documents carrying the term
}

// NewLexical creates an unbuilt lexical retriever.
func NewLexical(cfg LexicalConfig) *Lexical {
	cfg.applyDefaults()
	return &Lexical{cfg: cfg}
}

// Name implements Retriever.
func (l *Lexical) Name() string { return VariantLexical }

// Build constructs the sparse term-weight matrix over the corpus:
// vocabulary selection, smoothed IDF, and L2-normalized per-document
// TF-IDF vectors stored as an inverted index.
func (l *Lexical) Build(_ context.Context, docs []domain.Record) error {
	if len(docs) == 0 {
		return domain.ErrEmptyCorpus
	}

	docTerms := make([][]string, len(docs))
	for i, doc := range docs {
		docTerms[i] = ngrams(tokenize(doc.SearchText), l.cfg.NgramMin, l.cfg.NgramMax)
	}

	vocab := buildVocabulary(docTerms, l.cfg.MaxFeatures)

	// Document frequency per feature.
	df := make([]int, len(vocab))
	docCounts := make([]map[int]int, len(docs))
	for i, terms := range docTerms {
		counts := make(map[int]int)
		for _, term := range terms {
			if id, ok := vocab[term]; ok {
				counts[id]++
			}
		}
		docCounts[i] = counts
		for id := range counts {
			df[id]++
		}
	}

	// Smoothed IDF: ln((1+N)/(1+df)) + 1 never zeroes a term entirely.
	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for id, d := range df {
		idf[id] = math.Log((1+n)/(1+float64(d))) + 1
	}

	// L2-normalized TF-IDF rows, inverted for query-time accumulation.
	postings := make([][]posting, len(vocab))
	for i, counts := range docCounts {
		var norm float64
		for id, tf := range counts {
			w := float64(tf) * idf[id]
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for id, tf := range counts {
			postings[id] = append(postings[id], posting{
				doc:    i,
				weight: float64(tf) * idf[id] / norm,
			})
		}
	}

	l.docs = docs
	l.vocab = vocab
	l.idf = idf
	l.postings = postings
	return nil
}

// Retrieve transforms the query into the corpus weight space and ranks
// every document by cosine similarity. Out-of-vocabulary query terms
// contribute zero weight; that is expected, not an error.
func (l *Lexical) Retrieve(_ context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if l.vocab == nil {
		return nil, domain.ErrNotBuilt
	}

	queryCounts := make(map[int]int)
	for _, term := range ngrams(tokenize(query), l.cfg.NgramMin, l.cfg.NgramMax) {
		if id, ok := l.vocab[term]; ok {
			queryCounts[id]++
		}
	}

	var norm float64
	for id, tf := range queryCounts {
		w := float64(tf) * l.idf[id]
		norm += w * w
	}

	scores := make([]float64, len(l.docs))
	if norm > 0 {
		norm = math.Sqrt(norm)
		for id, tf := range queryCounts {
			qw := float64(tf) * l.idf[id] / norm
			for _, p := range l.postings[id] {
				scores[p.doc] += qw * p.weight
			}
		}
	}

	return topK(l.docs, scores, k), nil
}

// buildVocabulary assigns feature ids to terms, keeping the
// maxFeatures most frequent terms by total corpus occurrence count with
// lexicographic order breaking ties. Feature ids follow term order so
// the mapping is deterministic.
func buildVocabulary(docTerms [][]string, maxFeatures int) map[string]int {
	counts := make(map[string]int)
	for _, terms := range docTerms {
		for _, term := range terms {
			counts[term]++
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}

	if len(terms) > maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if counts[terms[i]] != counts[terms[j]] {
				return counts[terms[i]] > counts[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	for id, term := range terms {
		vocab[term] = id
	}
	return vocab
}
