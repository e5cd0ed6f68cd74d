// Package llm sends role-tagged prompts to a remote completion provider and
// returns the generated text.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/sofrecom/ragcore/retry"
)

var ErrNoMessages = errors.New("no messages to send")

// DefaultSystemPrompt mandates grounded answers. This is a content policy
// forwarded to the model, not a mechanical guarantee.
const DefaultSystemPrompt = `Tu es un assistant Sofrecom. Réponds UNIQUEMENT avec le contexte fourni.
Si l'info n'est pas dans le contexte, dis: "Je n'ai pas trouvé cette information."
Règles: français, concis, précis, ne jamais inventer.`

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options override the configured generation defaults for a single call.
type Options struct {
	MaxTokens   int
	Temperature *float64
	Stop        []string
}

type Generator interface {
	Generate(ctx context.Context, messages []Message, opts *Options) (string, error)

	// Chat prepends an optional system turn and prior history before the
	// user prompt.
	Chat(ctx context.Context, prompt string, systemPrompt string, history []Message) (string, error)

	// GenerateWithContext wraps the query with the grounding context and the
	// grounded-answer system prompt.
	GenerateWithContext(ctx context.Context, query string, context string, systemPrompt string) (string, error)
}

type Config struct {
	APIKey      string  `yaml:"-"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

func NewOpenAIGenerator(cfg Config, policy retry.Policy) *OpenAIGenerator {
	log := zap.L().With(
		zap.String("service", "llm"),
		zap.String("model", cfg.Model),
	)

	if policy.Retryable == nil {
		policy.Retryable = retry.IsTransient
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	)

	return &OpenAIGenerator{
		client: client,
		cfg:    cfg,
		policy: policy,
		log:    log,
	}
}

type OpenAIGenerator struct {
	client openai.Client
	cfg    Config
	policy retry.Policy
	log    *zap.Logger
}

func (g *OpenAIGenerator) Generate(ctx context.Context, messages []Message, opts *Options) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.cfg.Model),
		Messages:    toProviderMessages(messages),
		MaxTokens:   openai.Int(int64(g.cfg.MaxTokens)),
		Temperature: openai.Float(g.cfg.Temperature),
	}

	if opts != nil {
		if opts.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(opts.MaxTokens))
		}

		if opts.Temperature != nil {
			params.Temperature = openai.Float(*opts.Temperature)
		}

		if len(opts.Stop) > 0 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{
				OfStringArray: opts.Stop,
			}
		}
	}

	start := time.Now()

	var resp *openai.ChatCompletion
	err := g.policy.Do(ctx, func() error {
		r, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}

		resp = r
		return nil
	})

	if err != nil {
		g.log.Error(err.Error(),
			zap.String("action", "generate"),
			zap.Int("messages", len(messages)),
		)
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("provider returned no completion choices")
	}

	g.log.Info("completion generated",
		zap.Duration("duration", time.Since(start)),
	)

	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Chat(ctx context.Context, prompt string, systemPrompt string, history []Message) (string, error) {
	messages := make([]Message, 0, len(history)+2)

	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}

	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	return g.Generate(ctx, messages, nil)
}

func (g *OpenAIGenerator) GenerateWithContext(ctx context.Context, query string, context string, systemPrompt string) (string, error) {
	return g.Generate(ctx, GroundedMessages(query, context, systemPrompt), nil)
}

// GroundedMessages assembles the two-turn grounded prompt: the system policy
// followed by the context-wrapped question.
func GroundedMessages(query string, context string, systemPrompt string) []Message {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	userMsg := "CONTEXTE:\n" + context + "\n\nQUESTION: " + query + "\n\nRéponds en utilisant le contexte."

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userMsg},
	}
}

func toProviderMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(msg.Content)
		case RoleAssistant:
			out[i] = openai.AssistantMessage(msg.Content)
		default:
			out[i] = openai.UserMessage(msg.Content)
		}
	}

	return out
}
