package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/sofrecom/ragcore"
	"github.com/sofrecom/ragcore/embeddings"
	"github.com/sofrecom/ragcore/llm"
	"github.com/sofrecom/ragcore/persistence/chromem"
	"github.com/sofrecom/ragcore/retry"
	"github.com/sofrecom/ragcore/vector"

	httpT "github.com/sofrecom/ragcore/transport/http"
	natsT "github.com/sofrecom/ragcore/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "ragcore",
		Usage: "Retrieval-augmented answering service for the Sofrecom assistant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the ragcore configuration directory",
				Value: ".",
			},
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.BoolFlag{
				Name:  "http",
				Usage: "Enable HTTP transport",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "HTTP server address",
				Value: ":5055",
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

	cfg, err := ragcore.LoadConfig(cmd.String("path"))
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
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

	dispatcher := ragcore.NewDispatcher(svc, ragcore.Router{
		Threshold: cfg.RAG.ConfidenceThreshold,
	})

	endpoints := ragcore.EndpointSet{
		Query:        ragcore.QueryEndpoint(svc),
		Search:       ragcore.SearchEndpoint(svc),
		Count:        ragcore.CountEndpoint(svc),
		Reset:        ragcore.ResetEndpoint(svc),
		HandleAction: ragcore.HandleActionEndpoint(dispatcher),
	}

	natsURL := cmd.String("nats")
	if natsURL != "" {
		nc, err := nats.Connect(natsURL,
			nats.Name("Sofrecom RAG Core"),
		)

		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "ragcore",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		root := srv.AddGroup(cfg.NATS.Topic)
		natsT.AddEndpoints(root, endpoints)
	}

	httpEnabled := cmd.Bool("http")
	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	logger.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}
