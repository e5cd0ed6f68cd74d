package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/sofrecom/ragcore"
	"github.com/sofrecom/ragcore/embeddings"
	"github.com/sofrecom/ragcore/llm"
	"github.com/sofrecom/ragcore/persistence/chromem"
	"github.com/sofrecom/ragcore/retry"
	"github.com/sofrecom/ragcore/vector"
)

func main() {
	cmd := &cli.Command{
		Name:  "ragingest",
		Usage: "Ingest documents into the Sofrecom knowledge index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "path",
				Usage:    "Path to a file or directory of documents (.pdf, .txt, .md)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Chunk size override in characters",
			},
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Clear existing documents before ingesting",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the ragcore configuration directory",
				Value: ".",
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	cfg, err := ragcore.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if size := cmd.Int("chunk-size"); size > 0 {
		cfg.RAG.ChunkSize = int(size)
	}

	path := cmd.String("path")

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path not found: %s", path)
	}

	policy := retry.Default(nil)

	embedder := embeddings.NewOpenAIEmbedder(embeddings.Config{
		APIKey: cfg.OpenAI.APIKey,
		Model:  cfg.OpenAI.EmbeddingModel,
	}, policy)

	generator := llm.NewOpenAIGenerator(llm.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	}, policy)

	index, err := chromem.NewChromemIndex(cfg.Vector, vector.EmbedFunc(embedder.Embed))
	if err != nil {
		return err
	}

	svc := ragcore.NewService(cfg, embedder, index, generator)
	defer svc.Close()

	svc = ragcore.LoggingMiddleware(logger)(svc)

	if cmd.Bool("clear") {
		logger.Warn("clearing all existing documents")

		if err := svc.Reset(ctx); err != nil {
			return err
		}
	}

	var total int
	if info.IsDir() {
		total, err = svc.IngestDirectory(ctx, path)
	} else {
		total, err = svc.IngestFile(ctx, path)
	}

	if err != nil {
		return err
	}

	count, err := svc.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Ingestion complete! Indexed %d documents (%d total in store)\n", total, count)
	return nil
}
