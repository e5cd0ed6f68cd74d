package ragcore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sofrecom/ragcore/document"
	"github.com/sofrecom/ragcore/embeddings"
	"github.com/sofrecom/ragcore/llm"
	"github.com/sofrecom/ragcore/vector"
)

// Service is the retrieval-augmented core: it answers a query from the
// document index and manages the index contents.
type Service interface {

	// Close flushes the index and releases resources.
	Close() error

	// Query runs the full pipeline: retrieve, assemble context, generate a
	// grounded answer with source attribution and a confidence score.
	Query(ctx context.Context, query string) (*Response, error)

	// Retrieve embeds the query and returns matching index records above
	// the configured minimum relevance, best first.
	Retrieve(ctx context.Context, query string, topK int) ([]vector.SearchResult, error)

	// IngestFile chunks one file and indexes it. Returns the number of
	// chunks indexed.
	IngestFile(ctx context.Context, path string) (int, error)

	// IngestDirectory ingests every supported file under path. A failing
	// file is logged and skipped; an unavailable index aborts the run.
	IngestDirectory(ctx context.Context, path string) (int, error)

	Count(ctx context.Context) (int, error)

	// Reset drops every indexed document and recreates the collection.
	Reset(ctx context.Context) error
}

type ServiceMiddleware func(Service) Service

func NewService(cfg Config, embedder embeddings.Embedder, index vector.Index, generator llm.Generator) Service {
	log := zap.L().With(
		zap.String("service", "ragcore"),
	)

	return &service{
		cfg:       cfg,
		embedder:  embedder,
		index:     index,
		generator: generator,
		log:       log,
	}
}

type service struct {
	cfg       Config
	embedder  embeddings.Embedder
	index     vector.Index
	generator llm.Generator
	log       *zap.Logger
}

func (svc *service) Close() error {
	return svc.index.Flush()
}

func (svc *service) Query(ctx context.Context, query string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()

	results, err := svc.Retrieve(ctx, query, svc.cfg.RAG.TopK)
	if err != nil {
		return nil, err
	}

	context := BuildContext(results, svc.cfg.RAG.MaxContextLength)

	var (
		answer   string
		grounded bool
	)

	if context == "" {
		// Short-circuit: never ask the model to answer without grounding.
		answer = NoContextAnswer
	} else {
		answer, err = svc.generator.GenerateWithContext(ctx, query, context, "")
		if err != nil {
			return nil, err
		}

		grounded = true
	}

	var confidence float64
	sources := make([]Source, len(results))
	for i, result := range results {
		confidence += result.Relevance
		sources[i] = Source{
			ID:        result.ID,
			Source:    result.Metadata["source"],
			Relevance: result.Relevance,
		}
	}

	if len(results) > 0 {
		confidence /= float64(len(results))
	}

	duration := time.Since(start)

	svc.log.Info("rag query completed",
		zap.String("query", truncate(query, 100)),
		zap.Int("num_results", len(results)),
		zap.Float64("confidence", confidence),
		zap.Bool("grounded", grounded),
		zap.Duration("duration", duration),
	)

	return &Response{
		Answer:      answer,
		Sources:     sources,
		Confidence:  confidence,
		Grounded:    grounded,
		Query:       query,
		ContextUsed: truncate(context, ContextPreviewLength),
		DurationMS:  float64(duration.Microseconds()) / 1000,
	}, nil
}

func (svc *service) Retrieve(ctx context.Context, query string, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = svc.cfg.RAG.TopK
	}

	embedding, err := svc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := svc.index.Query(ctx, embedding, topK, nil, svc.cfg.RAG.MinRelevance)
	if err != nil {
		// No grounding found is a soft failure for the conversational turn;
		// the dialogue still gets its fallback reply.
		svc.log.Warn("index query failed, degrading to empty retrieval",
			zap.String("query", truncate(query, 100)),
			zap.Error(err),
		)

		return []vector.SearchResult{}, nil
	}

	return results, nil
}

// BuildContext concatenates results in ranked order as labeled sections.
// A section that would push the total over maxLength is excluded whole;
// sections are never truncated mid-section.
func BuildContext(results []vector.SearchResult, maxLength int) string {
	if len(results) == 0 {
		return ""
	}

	var (
		parts  []string
		length int
	)

	for i, result := range results {
		source := result.Metadata["source"]
		if source == "" {
			source = "Document"
		}

		section := fmt.Sprintf("[Source %d: %s]\n%s\n", i+1, source, result.Content)

		if length+len(section) > maxLength {
			break
		}

		parts = append(parts, section)
		length += len(section)
	}

	return strings.Join(parts, "\n---\n")
}

func (svc *service) IngestFile(ctx context.Context, path string) (int, error) {
	log := svc.log.With(
		zap.String("action", "ingest_file"),
		zap.String("source", filepath.Base(path)),
	)

	text, err := document.Extract(path)
	if err != nil {
		return 0, err
	}

	chunks := document.Chunk(text, svc.cfg.RAG.ChunkSize, svc.cfg.RAG.ChunkOverlap)
	if len(chunks) == 0 {
		log.Warn("no chunks extracted")
		return 0, nil
	}

	vectors, err := svc.embedder.EmbedChunks(ctx, chunks, 0)
	if err != nil {
		return 0, err
	}

	records := chunkRecords(path, chunks, vectors)

	if err := svc.index.AddBatch(ctx, records); err != nil {
		return 0, err
	}

	log.Info("file indexed", zap.Int("chunks", len(records)))

	return len(records), nil
}

func (svc *service) IngestDirectory(ctx context.Context, path string) (int, error) {
	total := 0

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !document.Supported(p) {
			return nil
		}

		n, err := svc.IngestFile(ctx, p)
		if err != nil {
			if errors.Is(err, vector.ErrIndexUnavailable) {
				return err
			}

			// A bad file contributes zero documents; its siblings continue.
			svc.log.Error(err.Error(),
				zap.String("action", "ingest_directory"),
				zap.String("source", filepath.Base(p)),
			)

			return nil
		}

		total += n
		return nil
	})

	if err != nil {
		return total, err
	}

	return total, nil
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.index.Count(), nil
}

func (svc *service) Reset(ctx context.Context) error {
	count := svc.index.Count()

	if err := svc.index.DeleteAll(ctx); err != nil {
		return err
	}

	svc.log.Warn("all documents deleted", zap.Int("count", count))

	return nil
}

// chunkRecords builds index records with the ingestion metadata contract:
// source filename, chunk index and total chunk count.
func chunkRecords(path string, chunks []string, vectors [][]float32) []vector.Record {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	records := make([]vector.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vector.Record{
			ID:        fmt.Sprintf("%s_%d", stem, i),
			Content:   chunk,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"source":       filepath.Base(path),
				"chunk_index":  fmt.Sprintf("%d", i),
				"total_chunks": fmt.Sprintf("%d", len(chunks)),
			},
		}
	}

	return records
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
