package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
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
		Name:  "ragcore_mcp_server",
		Usage: "Expose the Sofrecom knowledge index as MCP tools over stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
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
	// stdout carries the MCP protocol; logs stay on stderr.
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

	s := server.NewMCPServer("ragcore", "1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_knowledge",
		mcp.WithDescription("Search the Sofrecom knowledge base for relevant passages"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to return"),
		),
	)

	s.AddTool(searchTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		k := req.GetInt("k", cfg.RAG.TopK)

		results, err := svc.Retrieve(ctx, query, k)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(results)
		if err != nil {
			return nil, err
		}

		return mcp.NewToolResultText(string(data)), nil
	})

	askTool := mcp.NewTool("ask_knowledge",
		mcp.WithDescription("Ask a question answered only from the Sofrecom knowledge base, with source attribution"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question to answer"),
		),
	)

	s.AddTool(askTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := svc.Query(ctx, question)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}

		return mcp.NewToolResultText(string(data)), nil
	})

	return server.ServeStdio(s)
}
