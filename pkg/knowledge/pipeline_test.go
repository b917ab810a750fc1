package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/ragclient"
	"github.com/buxiuxian/summer-project/pkg/registry"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, humanText, systemText string, opts llmclient.CompletionOptions) (string, error) {
	return f.response, f.err
}

// sequenceLLM returns a different canned response on each successive call,
// so a test can distinguish the keyword-extraction call from the
// answer-composition call.
type sequenceLLM struct {
	responses []string
	calls     int
}

func (f *sequenceLLM) Complete(ctx context.Context, humanText, systemText string, opts llmclient.CompletionOptions) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return "", errors.New("sequenceLLM: no more canned responses")
	}
	return f.responses[i], nil
}

type fakeRAG struct {
	snippets []models.RetrievedSnippet
	err      error
	gotTopK  int
}

func (f *fakeRAG) Query(ctx context.Context, keywords []models.Keyword, topK int) ([]models.RetrievedSnippet, error) {
	f.gotTopK = topK
	return f.snippets, f.err
}

func newTestPipeline(llm llmclient.Client, rag ragclient.Client) (*Pipeline, *billing.Manager) {
	mgr := billing.NewManager()
	hub := progress.NewHub(100, 10, time.Minute)
	return New(llm, rag, mgr, hub, llmclient.CompletionOptions{}), mgr
}

func TestPipeline_HappyPathComposesAnswerAndDedupesSources(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"snow: 0.8\ndepth: 0.4",
		"relevant, outputting 0",
		"Snow depth is measured in centimeters.",
	}}
	rag := &fakeRAG{snippets: []models.RetrievedSnippet{
		{Content: "a", Source: "doc-a.txt", Similarity: 0.9, FileID: "f1"},
		{Content: "b", Source: "doc-b.pdf", Similarity: 0.5, FileID: "f2"},
	}}
	p, mgr := newTestPipeline(llm, rag)

	out, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "how deep is the snow?"})
	require.NoError(t, err)
	assert.Equal(t, "Snow depth is measured in centimeters.", out.Text)
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "doc-a.txt", out.Sources[0].SourceName, "higher similarity source sorts first")
	assert.True(t, out.Sources[1].Previewable, "a .pdf source is marked previewable")
	assert.Equal(t, topK, rag.gotTopK)
	assert.Equal(t, 3, mgr.Snapshot("s1").LLMCalls, "one call for keywords, one for relevance validation, one for the answer")
}

func TestPipeline_DedupesSourcesByFileID(t *testing.T) {
	llm := &sequenceLLM{responses: []string{"snow: 0.9", "0", "answer"}}
	rag := &fakeRAG{snippets: []models.RetrievedSnippet{
		{Content: "a", Source: "doc-a.txt", Similarity: 0.6, FileID: "shared"},
		{Content: "a-again", Source: "doc-a-mirror.txt", Similarity: 0.95, FileID: "shared"},
	}}
	p, _ := newTestPipeline(llm, rag)

	out, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "snow?"})
	require.NoError(t, err)
	require.Len(t, out.Sources, 1, "duplicate FileIDs collapse to a single source")
	assert.Equal(t, "doc-a.txt", out.Sources[0].SourceName, "first occurrence in iteration order is kept")
}

func TestPipeline_KeywordExtractionFallsBackToRawWordsOnLLMError(t *testing.T) {
	llm := &sequenceLLM{responses: []string{"0", "final answer"}}
	llmWithFailingFirstCall := &failFirstThenLLM{inner: llm}
	rag := &fakeRAG{snippets: []models.RetrievedSnippet{{Content: "c", Source: "s", Similarity: 0.5}}}
	p, mgr := newTestPipeline(llmWithFailingFirstCall, rag)

	out, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "what causes avalanches"})
	require.NoError(t, err)
	assert.Equal(t, "final answer", out.Text)
	assert.Equal(t, 2, mgr.Snapshot("s1").LLMCalls, "the failed keyword call is never billed; relevance validation and the answer call are")
}

// failFirstThenLLM fails its first Complete call (simulating the
// keyword-extraction request erroring) and delegates every later call
// to inner.
type failFirstThenLLM struct {
	inner llmclient.Client
	calls int
}

func (f *failFirstThenLLM) Complete(ctx context.Context, humanText, systemText string, opts llmclient.CompletionOptions) (string, error) {
	f.calls++
	if f.calls == 1 {
		return "", errors.New("llm unavailable")
	}
	return f.inner.Complete(ctx, humanText, systemText, opts)
}

func TestPipeline_NoKeywordsShortCircuitsWithRephrasePrompt(t *testing.T) {
	llm := &fakeLLM{response: ""}
	rag := &fakeRAG{}
	p, mgr := newTestPipeline(llm, rag)

	out, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "?"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "rephrase")
	assert.Equal(t, 1, mgr.Snapshot("s1").LLMCalls, "the keyword call itself succeeded and is billed even though it parsed to zero usable keywords")
}

func TestPipeline_EmptyRAGResultsFallsBackToGeneralAnswer(t *testing.T) {
	llm := &sequenceLLM{responses: []string{"snow: 0.9", "general knowledge answer"}}
	rag := &fakeRAG{snippets: nil}
	p, mgr := newTestPipeline(llm, rag)

	out, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "snow depth"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "general-knowledge answer")
	assert.Contains(t, out.Text, "general knowledge answer")
	assert.Empty(t, out.Sources)
	assert.Equal(t, 2, mgr.Snapshot("s1").LLMCalls, "one call for keywords, one for the general answer")
}

func TestPipeline_IrrelevantValidationFallsBackToGeneralAnswer(t *testing.T) {
	llm := &sequenceLLM{responses: []string{"snow: 0.9", "-1", "general knowledge answer"}}
	rag := &fakeRAG{snippets: []models.RetrievedSnippet{
		{Content: "a", Source: "s1", Similarity: 0.01},
		{Content: "b", Source: "s2", Similarity: 0.02},
	}}
	p, mgr := newTestPipeline(llm, rag)

	out, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "snow depth"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "general-knowledge answer")
	assert.Contains(t, out.Text, "general knowledge answer")
	assert.Empty(t, out.Sources)
	assert.Equal(t, 3, mgr.Snapshot("s1").LLMCalls, "keywords, relevance validation, and the general answer are all billed")
}

func TestPipeline_RelevanceValidationCallFailurePropagatesError(t *testing.T) {
	llm := &sequenceLLM{responses: []string{"snow: 0.9"}}
	llmFailingOnSecondCall := &failOnCallLLM{inner: llm, failOn: 2}
	rag := &fakeRAG{snippets: []models.RetrievedSnippet{{Content: "a", Source: "s1", Similarity: 0.9}}}
	p, _ := newTestPipeline(llmFailingOnSecondCall, rag)

	_, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "snow depth"})
	assert.Error(t, err, "a transport failure on the relevance call itself still propagates as an error")
}

// failOnCallLLM fails exactly its failOn'th Complete call and delegates
// every other call to inner.
type failOnCallLLM struct {
	inner  llmclient.Client
	failOn int
	calls  int
}

func (f *failOnCallLLM) Complete(ctx context.Context, humanText, systemText string, opts llmclient.CompletionOptions) (string, error) {
	f.calls++
	if f.calls == f.failOn {
		return "", errors.New("llm unavailable")
	}
	return f.inner.Complete(ctx, humanText, systemText, opts)
}

func TestParseRelevance_ZeroMeansRelevant(t *testing.T) {
	assert.True(t, parseRelevance("reasoning...\n0"))
}

func TestParseRelevance_NegativeOneMeansIrrelevant(t *testing.T) {
	assert.True(t, !parseRelevance("reasoning...\n-1"))
}

func TestParseRelevance_UnparseableDefaultsToRelevant(t *testing.T) {
	assert.True(t, parseRelevance("I'm not sure"))
}

func TestPipeline_RAGErrorPropagates(t *testing.T) {
	llm := &fakeLLM{response: "snow: 0.9"}
	rag := &fakeRAG{err: errors.New("rag service down")}
	p, _ := newTestPipeline(llm, rag)

	_, err := p.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "snow depth"})
	assert.Error(t, err)
}

func TestFallbackKeywords_DropsShortWordsAndDuplicates(t *testing.T) {
	ks := fallbackKeywords("the Snow snow is deep, is it?")
	terms := make(map[string]bool)
	for _, k := range ks {
		terms[k.Keyword] = true
	}
	assert.True(t, terms["snow"])
	assert.True(t, terms["deep"])
	assert.False(t, terms["is"], "words shorter than 3 bytes are dropped")
	assert.Len(t, ks, len(terms), "duplicate words collapse to a single keyword entry")
}

