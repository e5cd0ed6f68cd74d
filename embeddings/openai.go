// Package embeddings converts text into fixed-dimension semantic vectors
// through a remote embedding provider.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/sofrecom/ragcore/retry"
)

var (
	ErrEmptyText = errors.New("text must not be empty")
	ErrNoTexts   = errors.New("no texts to embed")
)

// maxInputChars caps input length before submission. The provider limit is
// 8191 tokens; 8000 characters stays safely under it.
const maxInputChars = 8000

const defaultBatchSize = 100

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedChunks splits a large sequence into provider-sized batches and
	// concatenates the results, preserving global order.
	EmbedChunks(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

type Config struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

func NewOpenAIEmbedder(cfg Config, policy retry.Policy) *OpenAIEmbedder {
	log := zap.L().With(
		zap.String("service", "embeddings"),
		zap.String("model", cfg.Model),
	)

	if policy.Retryable == nil {
		policy.Retryable = retry.IsTransient
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // retries are the policy's job
	)

	return &OpenAIEmbedder{
		client: client,
		model:  cfg.Model,
		policy: policy,
		log:    log,
	}
}

type OpenAIEmbedder struct {
	client openai.Client
	model  string
	policy retry.Policy
	log    *zap.Logger
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()

	var resp *openai.CreateEmbeddingResponse
	err := e.policy.Do(ctx, func() error {
		r, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(cleanInput(text)),
			},
		})
		if err != nil {
			return err
		}

		resp = r
		return nil
	})

	if err != nil {
		e.log.Error(err.Error(),
			zap.String("action", "embed"),
			zap.Int("text_length", len(text)),
		)
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("provider returned no embedding")
	}

	e.log.Debug("embedding generated",
		zap.Int("text_length", len(text)),
		zap.Duration("duration", time.Since(start)),
	)

	return toFloat32(resp.Data[0].Embedding), nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrNoTexts
	}

	cleaned := make([]string, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}

		cleaned[i] = cleanInput(text)
	}

	start := time.Now()

	var resp *openai.CreateEmbeddingResponse
	err := e.policy.Do(ctx, func() error {
		r, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: cleaned,
			},
		})
		if err != nil {
			return err
		}

		resp = r
		return nil
	})

	if err != nil {
		e.log.Error(err.Error(),
			zap.String("action", "embed_batch"),
			zap.Int("count", len(texts)),
		)
		return nil, err
	}

	vectors, err := alignByIndex(resp.Data, len(cleaned))
	if err != nil {
		return nil, err
	}

	e.log.Info("batch embeddings generated",
		zap.Int("count", len(vectors)),
		zap.Duration("duration", time.Since(start)),
	)

	return vectors, nil
}

func (e *OpenAIEmbedder) EmbedChunks(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}

		all = append(all, vectors...)

		e.log.Debug("batch processed",
			zap.Int("batch", i/batchSize+1),
			zap.Int("done", end),
			zap.Int("total", len(texts)),
		)
	}

	return all, nil
}

// alignByIndex restores provider order to request order using the per-item
// index marker.
func alignByIndex(data []openai.Embedding, n int) ([][]float32, error) {
	vectors := make([][]float32, n)

	for _, item := range data {
		if item.Index < 0 || int(item.Index) >= n {
			return nil, errors.New("provider returned an out-of-range embedding index")
		}

		vectors[item.Index] = toFloat32(item.Embedding)
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("provider response missing embedding for input %d", i)
		}
	}

	return vectors, nil
}

func cleanInput(text string) string {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	return strings.ReplaceAll(text, "\n", " ")
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}

	return out
}
