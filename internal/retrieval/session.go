package retrieval

import (
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
)

const rrfK = 60 // reciprocal-rank-fusion constant

type embedVec struct {
	docID string
	vec   []float32
}

type chunkDoc struct {
	Text string `json:"text"`
}

// indexSession is one article's on-disk bleve index plus its in-memory
// vectors. The corpora are small (a handful of pages) so vectors live in
// process and only the keyword index touches disk.
type indexSession struct {
	id  string
	dir string

	mu      sync.RWMutex
	bleve   bleve.Index
	meta    map[string]string
	vectors []embedVec
	counter int
}

func newIndexSession(id, dir string) (*indexSession, error) {
	index, err := bleve.New(dir, bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &indexSession{
		id:    id,
		dir:   dir,
		bleve: index,
		meta:  make(map[string]string),
	}, nil
}

func (s *indexSession) nextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

func (s *indexSession) addChunk(docID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[docID] = text
	return s.bleve.Index(docID, chunkDoc{Text: text})
}

func (s *indexSession) setVector(docID string, v []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = append(s.vectors, embedVec{docID: docID, vec: v})
}

func (s *indexSession) hasVectors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors) > 0
}

func (s *indexSession) keywordSearch(q string, k int) ([]Hit, error) {
	query := bleve.NewMatchQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := s.bleve.Search(searchReq)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		out = append(out, Hit{
			DocID: hit.ID,
			Text:  s.meta[hit.ID],
			Score: hit.Score,
			Rank:  i + 1,
		})
	}
	return out, nil
}

func (s *indexSession) vectorSearch(q []float32, k int) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		id    string
		score float64
	}
	var scoreds []scored
	for _, v := range s.vectors {
		scoreds = append(scoreds, scored{id: v.docID, score: cosine(q, v.vec)})
	}
	sort.Slice(scoreds, func(i, j int) bool { return scoreds[i].score > scoreds[j].score })
	var out []Hit
	for i, sc := range scoreds {
		out = append(out, Hit{DocID: sc.id, Text: s.meta[sc.id], Score: sc.score, Rank: i + 1})
		if len(out) >= k {
			break
		}
	}
	return out
}

func (s *indexSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bleve.Close()
}

func fuseRRF(a, b []Hit, k int) []Hit {
	type agg struct {
		item  Hit
		score float64
	}
	m := map[string]*agg{}
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := m[h.DocID]
			if !ok {
				m[h.DocID] = &agg{item: h}
				x = m[h.DocID]
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)
	fused := make([]Hit, 0, len(m))
	for _, v := range m {
		h := v.item
		h.Score = v.score
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if len(fused) > k {
		fused = fused[:k]
	}
	for i := range fused {
		fused[i].Rank = i + 1
	}
	return fused
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
