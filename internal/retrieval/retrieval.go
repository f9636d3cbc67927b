package retrieval

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/slotpress/slotpress/config"
)

// Embedder is the slice of the model provider the store needs. Embedding
// failures degrade retrieval to keyword-only, they never fail a run.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one retrieved chunk.
type Hit struct {
	DocID string
	Text  string
	Score float64
	Rank  int
}

// Store manages one ephemeral per-article index at a time. Each Init
// destroys the previous session's data, so facts from one article can
// never leak into the next.
type Store struct {
	cfg      config.RetrievalConfig
	embedder Embedder
	logger   *log.Logger

	mu   sync.Mutex
	sess *indexSession
}

func NewStore(cfg config.RetrievalConfig, embedder Embedder, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stdout, "[RETRIEVAL] ", log.LstdFlags)
	}
	return &Store{cfg: cfg, embedder: embedder, logger: logger}
}

// Init opens a fresh session directory for sessionID, dropping whatever
// session was active before and wiping any stale on-disk leftovers for
// the same ID.
func (s *Store) Init(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess != nil {
		s.destroyLocked()
	}

	dir := filepath.Join(s.cfg.BaseDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing stale session dir: %w", err)
	}
	if err := os.MkdirAll(s.cfg.BaseDir, 0o755); err != nil {
		return fmt.Errorf("creating session base dir: %w", err)
	}

	sess, err := newIndexSession(sessionID, dir)
	if err != nil {
		return fmt.Errorf("opening session index: %w", err)
	}
	s.sess = sess
	s.logger.Printf("session %s initialized at %s", sessionID, dir)
	return nil
}

// Index adds labeled chunks to the active session. Chunks are indexed for
// keyword search always; vectors are added when the embedder cooperates.
func (s *Store) Index(ctx context.Context, chunks []string) error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no active session")
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		id := fmt.Sprintf("chunk-%04d", sess.nextID())
		ids[i] = id
		if err := sess.addChunk(id, chunk); err != nil {
			return fmt.Errorf("indexing chunk: %w", err)
		}
	}

	if s.embedder == nil {
		return nil
	}
	vecs, err := s.embedder.CreateEmbedding(ctx, chunks)
	if err != nil || len(vecs) != len(chunks) {
		s.logger.Printf("WARNING: embedding %d chunks failed, keyword search only: %v", len(chunks), err)
		return nil
	}
	for i, v := range vecs {
		if len(v) == 0 {
			continue
		}
		sess.setVector(ids[i], v)
	}
	return nil
}

// Retrieve returns the top-k chunks for a query, fusing keyword and vector
// rankings. With no active session or an empty index it returns an empty
// slice, never an error; the writer downstream treats that as "no sources".
func (s *Store) Retrieve(ctx context.Context, query string, k int) []Hit {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	if k <= 0 || k > 50 {
		k = s.cfg.TopK
		if k <= 0 {
			k = 4
		}
	}

	bmHits, err := sess.keywordSearch(query, k)
	if err != nil {
		s.logger.Printf("WARNING: keyword search failed: %v", err)
		bmHits = nil
	}

	var vecHits []Hit
	if s.embedder != nil && sess.hasVectors() {
		qvecs, err := s.embedder.CreateEmbedding(ctx, []string{query})
		if err == nil && len(qvecs) == 1 && len(qvecs[0]) > 0 {
			vecHits = sess.vectorSearch(qvecs[0], k)
		}
	}

	if len(vecHits) == 0 {
		return bmHits
	}
	return fuseRRF(bmHits, vecHits, k)
}

// Cleanup closes the active session and removes its directory. With
// keep_sessions set the directory survives for inspection.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyLocked()
}

func (s *Store) destroyLocked() {
	if s.sess == nil {
		return
	}
	sess := s.sess
	s.sess = nil
	if err := sess.close(); err != nil {
		s.logger.Printf("WARNING: closing session index: %v", err)
	}
	if s.cfg.KeepSessions {
		s.logger.Printf("session %s kept at %s", sess.id, sess.dir)
		return
	}
	if err := os.RemoveAll(sess.dir); err != nil {
		s.logger.Printf("WARNING: removing session dir %s: %v", sess.dir, err)
		return
	}
	s.logger.Printf("session %s destroyed", sess.id)
}
