package fulltext

import (
	"math"
	"sort"
	"sync"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/record"
)

// Config configures the Index's tokenizer and BM25 parameters.
type Config struct {
	Tokenizer TokenizerKind
	StopWords map[string]bool
	Stemming  bool
	K1        float64
	B         float64
}

// DefaultConfig matches sqvect's BM25Encoder defaults (k1=1.2, b=0.75).
func DefaultConfig() Config {
	return Config{Tokenizer: TokenizerAuto, StopWords: DefaultStopWords(), Stemming: false, K1: 1.2, B: 0.75}
}

// Hit is one search result, mirroring vectorindex.Hit's shape so the
// hybrid engine can treat both index kinds uniformly.
type Hit struct {
	ID    string
	Score float64
}

// Index is an in-process BM25 inverted index.
type Index struct {
	mu sync.RWMutex

	tok Tokenizer
	k1  float64
	b   float64

	postings  map[string]map[string]int // term -> id -> term frequency
	docTerms  map[string]map[string]int // id -> term -> term frequency
	docLen    map[string]int
	docRec    map[string]*record.Record
	totalDocs int
	sumDocLen int
}

// NewIndex builds an empty BM25 index from cfg.
func NewIndex(cfg Config) *Index {
	if cfg.K1 == 0 {
		cfg.K1 = 1.2
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	return &Index{
		tok:      NewTokenizer(cfg.Tokenizer, cfg.StopWords, cfg.Stemming),
		k1:       cfg.K1,
		b:        cfg.B,
		postings: make(map[string]map[string]int),
		docTerms: make(map[string]map[string]int),
		docLen:   make(map[string]int),
		docRec:   make(map[string]*record.Record),
	}
}

// Add indexes text under id, replacing any prior content for id.
func (idx *Index) Add(id string, text string, rec *record.Record) error {
	if id == "" {
		return enginerr.New("fulltext.Add", enginerr.CodeInvalidArgument, nil)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docTerms[id]; exists {
		idx.deleteLocked(id)
	}

	terms := idx.tok.Tokenize(text)
	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}

	idx.docTerms[id] = counts
	idx.docLen[id] = len(terms)
	idx.docRec[id] = rec
	idx.totalDocs++
	idx.sumDocLen += len(terms)

	for term, tf := range counts {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[string]int)
		}
		idx.postings[term][id] = tf
	}
	return nil
}

// Delete removes id from the index. Returns false if id was not present.
func (idx *Index) Delete(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.docTerms[id]; !ok {
		return false
	}
	idx.deleteLocked(id)
	return true
}

func (idx *Index) deleteLocked(id string) {
	for term := range idx.docTerms[id] {
		postings := idx.postings[term]
		delete(postings, id)
		if len(postings) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.sumDocLen -= idx.docLen[id]
	idx.totalDocs--
	delete(idx.docTerms, id)
	delete(idx.docLen, id)
	delete(idx.docRec, id)
}

func (idx *Index) avgDocLen() float64 {
	if idx.totalDocs == 0 {
		return 0
	}
	return float64(idx.sumDocLen) / float64(idx.totalDocs)
}

// idf is the BM25 IDF term, computed on demand from current corpus
// statistics: log((N - df + 0.5) / (df + 0.5) + 1).
func (idx *Index) idf(term string) float64 {
	df := len(idx.postings[term])
	if df == 0 {
		return 0
	}
	n := float64(idx.totalDocs)
	d := float64(df)
	return math.Log((n-d+0.5)/(d+0.5) + 1)
}

// Search scores query against every document containing at least one
// query term, per the BM25 formula:
//
//	idf(t) * (tf*(k1+1)) / (tf + k1*(1 - b + b*(docLen/avgDocLen)))
//
// summed over query terms, then returns up to k hits passing filter.
func (idx *Index) Search(query string, k int, filter record.Predicate) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 {
		return nil, nil
	}

	terms := idx.tok.Tokenize(query)
	avgLen := idx.avgDocLen()
	scores := make(map[string]float64)

	for _, term := range terms {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.idf(term)
		if idf <= 0 {
			continue
		}
		for id, tf := range postings {
			docLen := float64(idx.docLen[id])
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*(docLen/avgLen))
			scores[id] += idf * (float64(tf) * (idx.k1 + 1)) / denom
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		if filter != nil && !filter(idx.docRec[id]) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalDocs
}
