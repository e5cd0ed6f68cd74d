package ragcore

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sofrecom/ragcore/vector"
)

var (
	ErrMissingAPIKey  = errors.New("OPENAI_API_KEY is required")
	ErrEmptyQuery     = errors.New("query must not be empty")
	ErrUnknownAction  = errors.New("unknown action")
	ErrNotImplemented = errors.New("method not implemented")
)

// Fixed user-facing sentences, shared with the dialogue engine's domain
// definition.
const (
	// NoContextAnswer is returned without calling the language model when
	// retrieval finds no grounding.
	NoContextAnswer = "Je n'ai pas trouvé d'information pertinente. Souhaitez-vous parler à un conseiller ?"

	// TechnicalIssueAnswer degrades a turn whose pipeline raised an error.
	TechnicalIssueAnswer = "Je rencontre un problème technique. Souhaitez-vous parler à un conseiller ?"

	// EscalateAnswer is offered after too many consecutive fallbacks.
	EscalateAnswer = "Je n'arrive pas à comprendre vos demandes. Souhaitez-vous parler à un conseiller humain ?"

	SearchingMessage         = "Je recherche dans notre documentation..."
	FallbackSearchingMessage = "Laissez-moi chercher dans notre base de connaissances..."
)

// ContextPreviewLength bounds the context snippet stored in slots and logs.
const ContextPreviewLength = 500

type OpenAIConfig struct {
	APIKey         string  `yaml:"-"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embeddingModel"`
	MaxTokens      int     `yaml:"maxTokens"`
	Temperature    float64 `yaml:"temperature"`
}

type RAGConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	TopK                int     `yaml:"topK"`
	ChunkSize           int     `yaml:"chunkSize"`
	ChunkOverlap        int     `yaml:"chunkOverlap"`
	MinRelevance        float64 `yaml:"minRelevance"`
	MaxContextLength    int     `yaml:"maxContextLength"`
}

type NATSConfig struct {
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

type Config struct {
	OpenAI OpenAIConfig  `yaml:"openai"`
	Vector vector.Config `yaml:"vector"`
	RAG    RAGConfig     `yaml:"rag"`
	NATS   NATSConfig    `yaml:"nats"`
}

func DefaultConfig() Config {
	return Config{
		OpenAI: OpenAIConfig{
			Model:          "gpt-4",
			EmbeddingModel: "text-embedding-ada-002",
			MaxTokens:      1024,
			Temperature:    0.7,
		},
		Vector: vector.Config{
			Persistent: true,
			Path:       "./chroma_db",
			Collection: "sofrecom_docs",
			Distance:   "cosine",
		},
		RAG: RAGConfig{
			ConfidenceThreshold: 0.75,
			TopK:                5,
			ChunkSize:           1000,
			ChunkOverlap:        200,
			MinRelevance:        0.5,
			MaxContextLength:    4000,
		},
		NATS: NATSConfig{
			Topic: "sofrecom.assistant.rag",
		},
	}
}

// LoadConfig reads an optional config.yaml under dir and applies environment
// overrides on top of the defaults. The provider credential only ever comes
// from the environment.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(dir, "config.yaml")
	if f, err := os.Open(path); err == nil {
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")

	envString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	envString(&cfg.OpenAI.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")
	envInt(&cfg.OpenAI.MaxTokens, "OPENAI_MAX_TOKENS")
	envFloat(&cfg.OpenAI.Temperature, "OPENAI_TEMPERATURE")

	envString(&cfg.Vector.Path, "CHROMA_PERSIST_DIR")
	envString(&cfg.Vector.Collection, "CHROMA_COLLECTION")
	envString(&cfg.Vector.Distance, "CHROMA_DISTANCE")

	envFloat(&cfg.RAG.ConfidenceThreshold, "RAG_CONFIDENCE_THRESHOLD")
	envInt(&cfg.RAG.TopK, "RAG_TOP_K")
	envInt(&cfg.RAG.ChunkSize, "RAG_CHUNK_SIZE")
	envInt(&cfg.RAG.ChunkOverlap, "RAG_CHUNK_OVERLAP")
	envFloat(&cfg.RAG.MinRelevance, "RAG_MIN_RELEVANCE")

	envString(&cfg.NATS.URL, "NATS_URL")
}

// Validate checks the startup-fatal requirements.
func (cfg Config) Validate() error {
	if cfg.OpenAI.APIKey == "" {
		return ErrMissingAPIKey
	}

	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Source attributes part of an answer to an indexed document.
type Source struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// Response is the result of one retrieval-augmented pipeline invocation.
type Response struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`

	// Grounded distinguishes an answer generated from retrieved context
	// from the fixed no-context reply.
	Grounded bool `json:"grounded"`

	Query       string  `json:"query"`
	ContextUsed string  `json:"context_used"`
	DurationMS  float64 `json:"duration_ms"`
}
