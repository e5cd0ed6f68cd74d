package vector

import (
	"context"
	"errors"
)

var (
	ErrInvalidRecord    = errors.New("record must have an id, content and a source")
	ErrRecordNotFound   = errors.New("record not found")
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

type Config struct {
	Persistent bool   `yaml:"persistent"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Distance   string `yaml:"distance"` // cosine, l2, ip
}

// EmbedFunc converts a text into its embedding. Implementations backed by a
// remote provider may block on network I/O.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Index is a persistent store of (id, embedding, content, metadata) records
// supporting nearest-neighbor queries.
type Index interface {
	Add(ctx context.Context, rec Record) error
	AddBatch(ctx context.Context, recs []Record) error

	// Query returns results sorted by ascending distance. Results whose
	// relevance falls below minRelevance are dropped. The filter narrows
	// candidates by exact metadata match before scoring.
	Query(ctx context.Context, embedding []float32, topK int, filter map[string]string, minRelevance float64) ([]SearchResult, error)

	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error

	// DeleteAll drops every record and recreates an empty collection under
	// the same name and distance metric.
	DeleteAll(ctx context.Context) error

	Count() int

	// Flush commits in-memory state to durable storage.
	Flush() error
}

type Record struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
}

// Validate enforces the index invariant: non-empty content and a source
// metadata field on every record.
func (r Record) Validate() error {
	if r.ID == "" || r.Content == "" {
		return ErrInvalidRecord
	}

	if r.Metadata["source"] == "" {
		return ErrInvalidRecord
	}

	return nil
}

type SearchResult struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Distance  float64           `json:"distance"`
	Relevance float64           `json:"relevance"`
}
