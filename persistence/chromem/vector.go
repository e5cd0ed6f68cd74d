package chromem

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/sofrecom/ragcore/vector"
)

var validDistances = map[string]bool{
	"cosine": true,
	"l2":     true,
	"ip":     true,
}

func NewChromemIndex(cfg vector.Config, embed vector.EmbedFunc) (vector.Index, error) {
	if cfg.Distance == "" {
		cfg.Distance = "cosine"
	}

	if !validDistances[cfg.Distance] {
		return nil, errors.New("unsupported distance function: " + cfg.Distance)
	}

	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
		}

		db = d
	}

	idx := &chromemIndex{
		db:  db,
		cfg: cfg,
	}

	if embed != nil {
		idx.embedFunc = chromem.EmbeddingFunc(embed)
	}

	c, err := db.GetOrCreateCollection(cfg.Collection, idx.collectionMetadata(), idx.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}

	idx.collection = c

	return idx, nil
}

type chromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
	cfg        vector.Config

	mu sync.RWMutex
}

func (idx *chromemIndex) collectionMetadata() map[string]string {
	return map[string]string{
		"space": idx.cfg.Distance,
	}
}

func (idx *chromemIndex) Add(ctx context.Context, rec vector.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	doc := chromem.Document{
		ID:        rec.ID,
		Metadata:  rec.Metadata,
		Embedding: rec.Embedding,
		Content:   rec.Content,
	}

	return idx.collection.AddDocument(ctx, doc)
}

func (idx *chromemIndex) AddBatch(ctx context.Context, recs []vector.Record) error {
	if len(recs) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return err
		}

		docs[i] = chromem.Document{
			ID:        rec.ID,
			Metadata:  rec.Metadata,
			Embedding: rec.Embedding,
			Content:   rec.Content,
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.collection.AddDocuments(ctx, docs, 1)
}

func (idx *chromemIndex) Query(ctx context.Context, embedding []float32, topK int, filter map[string]string, minRelevance float64) ([]vector.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if count := idx.collection.Count(); topK > count {
		topK = count
	}

	if topK <= 0 {
		return []vector.SearchResult{}, nil
	}

	results, err := idx.collection.QueryEmbedding(ctx, embedding, topK, filter, nil)
	if err != nil {
		return nil, err
	}

	// chromem reports cosine similarity; the index contract speaks in
	// distances, so convert and normalize relevance to [0, 1].
	out := make([]vector.SearchResult, 0, len(results))
	for _, result := range results {
		distance := 1 - float64(result.Similarity)

		relevance := 1 - distance
		if relevance < 0 {
			relevance = 0
		}

		if relevance < minRelevance {
			continue
		}

		out = append(out, vector.SearchResult{
			ID:        result.ID,
			Content:   result.Content,
			Metadata:  result.Metadata,
			Distance:  distance,
			Relevance: relevance,
		})
	}

	return out, nil
}

func (idx *chromemIndex) Get(ctx context.Context, id string) (vector.Record, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	doc, err := idx.collection.GetByID(ctx, id)
	if err != nil {
		return vector.Record{}, vector.ErrRecordNotFound
	}

	return vector.Record{
		ID:        doc.ID,
		Content:   doc.Content,
		Metadata:  doc.Metadata,
		Embedding: doc.Embedding,
	}, nil
}

func (idx *chromemIndex) Delete(ctx context.Context, id string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.collection.Delete(ctx, nil, nil, id)
}

func (idx *chromemIndex) DeleteAll(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.db.DeleteCollection(idx.cfg.Collection); err != nil {
		return err
	}

	c, err := idx.db.CreateCollection(idx.cfg.Collection, idx.collectionMetadata(), idx.embedFunc)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}

	idx.collection = c

	return nil
}

func (idx *chromemIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.collection.Count()
}

func (idx *chromemIndex) Flush() error {
	if !idx.cfg.Persistent {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	// The persistent DB already writes each mutation; the snapshot is the
	// explicit durable commit and a restore point for a damaged directory.
	// Collections are loaded from subdirectories, so a plain file inside the
	// persist directory is ignored on startup.
	snapshot := filepath.Join(idx.cfg.Path, "snapshot.gob.gz")

	return idx.db.ExportToFile(snapshot, true, "")
}
