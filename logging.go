package ragcore

import (
	"context"

	"go.uber.org/zap"

	"github.com/sofrecom/ragcore/vector"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "ragcore"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) Query(ctx context.Context, query string) (*Response, error) {
	log := mw.log.With(
		zap.String("action", "query"),
		zap.String("query", truncate(query, 100)),
	)

	resp, err := mw.next.Query(ctx, query)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("query answered",
		zap.Int("sources", len(resp.Sources)),
		zap.Float64("confidence", resp.Confidence),
		zap.Bool("grounded", resp.Grounded),
		zap.Float64("duration_ms", resp.DurationMS),
	)
	return resp, nil
}

func (mw *loggingMiddleware) Retrieve(ctx context.Context, query string, topK int) ([]vector.SearchResult, error) {
	log := mw.log.With(
		zap.String("action", "retrieve"),
		zap.String("query", truncate(query, 100)),
		zap.Int("top_k", topK),
	)

	results, err := mw.next.Retrieve(ctx, query, topK)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	topScore := 0.0
	if len(results) > 0 {
		topScore = results[0].Relevance
	}

	log.Info("documents retrieved",
		zap.Int("count", len(results)),
		zap.Float64("top_score", topScore),
	)
	return results, nil
}

func (mw *loggingMiddleware) IngestFile(ctx context.Context, path string) (int, error) {
	log := mw.log.With(
		zap.String("action", "ingest_file"),
		zap.String("path", path),
	)

	n, err := mw.next.IngestFile(ctx, path)
	if err != nil {
		log.Error(err.Error())
		return 0, err
	}

	log.Info("file ingested", zap.Int("chunks", n))
	return n, nil
}

func (mw *loggingMiddleware) IngestDirectory(ctx context.Context, path string) (int, error) {
	log := mw.log.With(
		zap.String("action", "ingest_directory"),
		zap.String("path", path),
	)

	n, err := mw.next.IngestDirectory(ctx, path)
	if err != nil {
		log.Error(err.Error())
		return n, err
	}

	log.Info("directory ingested", zap.Int("chunks", n))
	return n, nil
}

func (mw *loggingMiddleware) Count(ctx context.Context) (int, error) {
	return mw.next.Count(ctx)
}

func (mw *loggingMiddleware) Reset(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "reset"),
	)

	if err := mw.next.Reset(ctx); err != nil {
		log.Error(err.Error())
		return err
	}

	log.Warn("index reset")
	return nil
}
