package ragcore

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/sofrecom/ragcore/embeddings"
	"github.com/sofrecom/ragcore/llm"
	"github.com/sofrecom/ragcore/persistence/chromem"
	"github.com/sofrecom/ragcore/vector"
)

// bagEmbedder hashes words into a fixed-dimension count vector. Texts sharing
// words land close under cosine similarity, which is all the pipeline needs.
type bagEmbedder struct{}

func (e bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embeddings.ErrEmptyText
	}

	vec := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?")
		if word == "" {
			continue
		}

		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%64]++
	}

	return vec, nil
}

func (e bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embeddings.ErrNoTexts
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		vectors[i] = v
	}

	return vectors, nil
}

func (e bagEmbedder) EmbedChunks(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	return e.EmbedBatch(ctx, texts)
}

type stubGenerator struct {
	answer      string
	err         error
	calls       int
	lastContext string
	lastQuery   string
}

func (g *stubGenerator) Generate(ctx context.Context, messages []llm.Message, opts *llm.Options) (string, error) {
	g.calls++

	if g.err != nil {
		return "", g.err
	}

	return g.answer, nil
}

func (g *stubGenerator) Chat(ctx context.Context, prompt string, systemPrompt string, history []llm.Message) (string, error) {
	return g.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
}

func (g *stubGenerator) GenerateWithContext(ctx context.Context, query string, context string, systemPrompt string) (string, error) {
	g.lastQuery = query
	g.lastContext = context

	return g.Generate(ctx, llm.GroundedMessages(query, context, systemPrompt), nil)
}

type ragServiceTestSuite struct {
	suite.Suite
	cfg       Config
	generator *stubGenerator
	svc       Service
	dir       string
}

func (suite *ragServiceTestSuite) SetupTest() {
	cfg := DefaultConfig()
	cfg.OpenAI.APIKey = "test"
	cfg.Vector.Persistent = false
	cfg.Vector.Collection = "test_docs"

	index, err := chromem.NewChromemIndex(cfg.Vector, nil)
	suite.Require().NoError(err)

	suite.cfg = cfg
	suite.generator = &stubGenerator{answer: "Le support est ouvert de 9h à 18h."}
	suite.svc = NewService(cfg, bagEmbedder{}, index, suite.generator)
	suite.dir = suite.T().TempDir()
}

func (suite *ragServiceTestSuite) writeFile(name, content string) string {
	path := filepath.Join(suite.dir, name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0644))

	return path
}

const hoursDoc = "Les horaires du support Sofrecom sont de 9h a 18h du lundi au vendredi."
const cantineDoc = "La cantine propose un menu vegetarien chaque mardi midi."

func (suite *ragServiceTestSuite) TestIngestFileAndQuery() {
	ctx := context.Background()

	path := suite.writeFile("hours.txt", hoursDoc)

	n, err := suite.svc.IngestFile(ctx, path)
	suite.Require().NoError(err)
	suite.Equal(1, n)

	count, err := suite.svc.Count(ctx)
	suite.Require().NoError(err)
	suite.Equal(1, count)

	resp, err := suite.svc.Query(ctx, "Quels sont les horaires du support ?")
	suite.Require().NoError(err)

	suite.True(resp.Grounded)
	suite.Equal(suite.generator.answer, resp.Answer)
	suite.Greater(resp.Confidence, 0.5)

	suite.Require().Len(resp.Sources, 1)
	suite.Equal("hours.txt", resp.Sources[0].Source)
	suite.Equal("hours_0", resp.Sources[0].ID)

	suite.Contains(suite.generator.lastContext, "[Source 1: hours.txt]")
	suite.Contains(suite.generator.lastContext, hoursDoc)
}

func (suite *ragServiceTestSuite) TestQueryEmpty() {
	_, err := suite.svc.Query(context.Background(), "  ")
	suite.ErrorIs(err, ErrEmptyQuery)
}

func (suite *ragServiceTestSuite) TestQueryWithoutGrounding() {
	resp, err := suite.svc.Query(context.Background(), "Quels sont les horaires du support ?")
	suite.Require().NoError(err)

	suite.False(resp.Grounded)
	suite.Equal(NoContextAnswer, resp.Answer)
	suite.Zero(resp.Confidence)
	suite.Empty(resp.Sources)

	// The model is never asked to answer without grounding.
	suite.Zero(suite.generator.calls)
}

func (suite *ragServiceTestSuite) TestQueryGeneratorFailure() {
	ctx := context.Background()

	path := suite.writeFile("hours.txt", hoursDoc)
	_, err := suite.svc.IngestFile(ctx, path)
	suite.Require().NoError(err)

	suite.generator.err = errors.New("provider down")

	_, err = suite.svc.Query(ctx, "Quels sont les horaires du support ?")
	suite.Error(err)
}

func (suite *ragServiceTestSuite) TestRetrieveRankedAndFiltered() {
	ctx := context.Background()

	suite.writeFile("hours.txt", hoursDoc)
	suite.writeFile("cantine.txt", cantineDoc)

	total, err := suite.svc.IngestDirectory(ctx, suite.dir)
	suite.Require().NoError(err)
	suite.Equal(2, total)

	results, err := suite.svc.Retrieve(ctx, "Quels sont les horaires du support ?", 5)
	suite.Require().NoError(err)
	suite.Require().NotEmpty(results)

	suite.Equal("hours.txt", results[0].Metadata["source"])

	for i, result := range results {
		suite.GreaterOrEqual(result.Relevance, suite.cfg.RAG.MinRelevance)

		if i > 0 {
			suite.LessOrEqual(result.Relevance, results[i-1].Relevance)
		}
	}
}

func (suite *ragServiceTestSuite) TestIngestDirectorySkipsUnsupported() {
	ctx := context.Background()

	suite.writeFile("hours.txt", hoursDoc)
	suite.writeFile("logo.png", "not a document")

	total, err := suite.svc.IngestDirectory(ctx, suite.dir)
	suite.Require().NoError(err)
	suite.Equal(1, total)
}

func (suite *ragServiceTestSuite) TestIngestFileUnsupported() {
	path := suite.writeFile("logo.png", "not a document")

	_, err := suite.svc.IngestFile(context.Background(), path)
	suite.Error(err)
}

func (suite *ragServiceTestSuite) TestReset() {
	ctx := context.Background()

	path := suite.writeFile("hours.txt", hoursDoc)
	_, err := suite.svc.IngestFile(ctx, path)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.svc.Reset(ctx))

	count, err := suite.svc.Count(ctx)
	suite.Require().NoError(err)
	suite.Zero(count)

	resp, err := suite.svc.Query(ctx, "Quels sont les horaires du support ?")
	suite.Require().NoError(err)
	suite.Equal(NoContextAnswer, resp.Answer)
}

func TestRAGServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ragServiceTestSuite))
}

func searchResult(id, source, content string, relevance float64) vector.SearchResult {
	return vector.SearchResult{
		ID:        id,
		Content:   content,
		Distance:  1 - relevance,
		Relevance: relevance,
		Metadata:  map[string]string{"source": source},
	}
}

func TestBuildContext(t *testing.T) {
	assert := assert.New(t)

	results := []vector.SearchResult{
		searchResult("a_0", "a.txt", "premier extrait", 0.9),
		searchResult("b_0", "b.txt", "second extrait", 0.8),
	}

	context := BuildContext(results, 4000)

	assert.Contains(context, "[Source 1: a.txt]\npremier extrait\n")
	assert.Contains(context, "[Source 2: b.txt]\nsecond extrait\n")
	assert.Contains(context, "\n---\n")
}

func TestBuildContextEmptyResults(t *testing.T) {
	assert.Equal(t, "", BuildContext(nil, 4000))
}

func TestBuildContextLengthLimit(t *testing.T) {
	assert := assert.New(t)

	results := []vector.SearchResult{
		searchResult("a_0", "a.txt", strings.Repeat("a", 100), 0.9),
		searchResult("b_0", "b.txt", strings.Repeat("b", 100), 0.8),
	}

	// Sections are included whole or not at all.
	context := BuildContext(results, 150)

	assert.Contains(context, "[Source 1: a.txt]")
	assert.NotContains(context, "bbb")
}

func TestBuildContextFirstSectionOverLimit(t *testing.T) {
	results := []vector.SearchResult{
		searchResult("a_0", "a.txt", strings.Repeat("a", 60), 0.9),
	}

	assert.Equal(t, "", BuildContext(results, 50))
}

func TestBuildContextDefaultSourceLabel(t *testing.T) {
	results := []vector.SearchResult{
		{ID: "a_0", Content: "extrait", Relevance: 0.9},
	}

	context := BuildContext(results, 4000)
	assert.Contains(t, context, "[Source 1: Document]")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("bonjour", truncate("bonjour", 100))

	// "é" is two bytes; a byte-indexed cut would split it.
	assert.Equal("h", truncate("héllo", 2))
	assert.Equal("hé", truncate("héllo", 3))

	s := strings.Repeat("Je n'ai pas trouvé cette information. ", 20)
	cut := truncate(s, 500)

	assert.LessOrEqual(len(cut), 500)
	assert.True(utf8.ValidString(cut))
}

func TestChunkRecords(t *testing.T) {
	assert := assert.New(t)

	chunks := []string{"premier", "second"}
	vectors := [][]float32{{1}, {2}}

	records := chunkRecords("/docs/guide ops.pdf", chunks, vectors)

	assert.Len(records, 2)
	assert.Equal("guide ops_0", records[0].ID)
	assert.Equal("guide ops_1", records[1].ID)
	assert.Equal("guide ops.pdf", records[0].Metadata["source"])
	assert.Equal("0", records[0].Metadata["chunk_index"])
	assert.Equal("2", records[0].Metadata["total_chunks"])
	assert.Equal("premier", records[0].Content)
	assert.NoError(records[0].Validate())
}
