// Package knowledge implements the Knowledge Pipeline (spec.md §4.3,
// TaskKnowledge): keyword extraction, RAG retrieval, an LLM relevance
// validation call, and final-answer composition with a deduplicated,
// similarity-sorted source list. When retrieval comes up empty or the
// validation call judges it irrelevant, the pipeline falls back to a
// disclaimer-prefixed general-knowledge answer rather than refusing
// outright. Grounded on original_source's
// app/agent/chains/knowledge_chain.go run_knowledge_query_with_sources_structured
// and app/agent/tools/knowledge_tools.py validate_knowledge_relevance /
// app/agent/core/response_generator.go _generate_fallback_answer,
// restructured into the teacher's registry.Handler shape (pkg/registry).
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/ragclient"
	"github.com/buxiuxian/summer-project/pkg/registry"
)

// topK is how many snippets are requested per query
// (original_source: "query_domain_science_db_structured(keywords, top_k=5)").
const topK = 5

// generalKnowledgeDisclaimer prefixes every answer generated without a
// grounded knowledge-base context, so the client can always tell the two
// kinds of answer apart (original_source's progress message on this path:
// "知识库中无相关内容，使用通用知识回答...").
const generalKnowledgeDisclaimer = "I couldn't confirm this from the knowledge base, so the following is a general-knowledge answer and may be less precise.\n\n"

// Pipeline implements registry.Handler for models.TaskKnowledge.
type Pipeline struct {
	llm     llmclient.Client
	rag     ragclient.Client
	billing *billing.Manager
	hub     *progress.Hub
	opts    llmclient.CompletionOptions
}

// New constructs a Pipeline.
func New(llm llmclient.Client, rag ragclient.Client, billingMgr *billing.Manager, hub *progress.Hub, opts llmclient.CompletionOptions) *Pipeline {
	return &Pipeline{llm: llm, rag: rag, billing: billingMgr, hub: hub, opts: opts}
}

// SupportedCodes implements registry.Handler.
func (p *Pipeline) SupportedCodes() []models.TaskCode {
	return []models.TaskCode{models.TaskKnowledge}
}

// Handle implements registry.Handler.
func (p *Pipeline) Handle(ctx context.Context, in registry.Input) (registry.Output, error) {
	p.hub.Publish(in.SessionID, models.ProgressEvent{SessionID: in.SessionID, Stage: models.StageProcessing, Message: "extracting keywords", Timestamp: time.Now()})

	keywords := p.extractKeywords(ctx, in)
	if len(keywords) == 0 {
		return registry.Output{Text: "I couldn't find any searchable terms in that question. Could you rephrase it?"}, nil
	}

	p.hub.Publish(in.SessionID, models.ProgressEvent{SessionID: in.SessionID, Stage: models.StageProcessing, Message: "retrieving from knowledge base", Timestamp: time.Now()})

	snippets, err := p.rag.Query(ctx, keywords, topK)
	if err != nil {
		slog.Error("knowledge pipeline: retrieval failed", "session_id", in.SessionID, "error", err)
		return registry.Output{}, fmt.Errorf("knowledge retrieval: %w", err)
	}
	if len(snippets) == 0 {
		return p.generalAnswer(ctx, in)
	}

	p.hub.Publish(in.SessionID, models.ProgressEvent{SessionID: in.SessionID, Stage: models.StageProcessing, Message: "checking relevance", Timestamp: time.Now()})

	relevant, err := p.validateRelevance(ctx, in, snippets)
	if err != nil {
		slog.Error("knowledge pipeline: relevance validation failed", "session_id", in.SessionID, "error", err)
		return registry.Output{}, fmt.Errorf("relevance validation: %w", err)
	}
	if !relevant {
		return p.generalAnswer(ctx, in)
	}

	answer, err := p.composeAnswer(ctx, in, snippets)
	if err != nil {
		return registry.Output{}, fmt.Errorf("answer generation: %w", err)
	}

	return registry.Output{Text: answer, Sources: dedupeSources(snippets)}, nil
}

func (p *Pipeline) extractKeywords(ctx context.Context, in registry.Input) models.KeywordSet {
	human, system := keywordPrompt(in.Message, in.Files)
	response, err := p.llm.Complete(ctx, human, system, p.opts)
	if err != nil {
		return fallbackKeywords(in.Message)
	}
	p.billing.RecordLLMCall(in.SessionID)

	ks := parseKeywords(response)
	if len(ks) == 0 {
		return fallbackKeywords(in.Message)
	}
	return ks.Normalize()
}

// parseKeywords reads "term: weight" lines from the LLM's response,
// one keyword per line, ignoring anything it can't parse.
func parseKeywords(response string) models.KeywordSet {
	var out models.KeywordSet
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx == -1 {
			continue
		}
		term := strings.TrimSpace(line[:idx])
		weightStr := strings.TrimSpace(line[idx+1:])
		var weight float64
		if _, err := fmt.Sscanf(weightStr, "%f", &weight); err != nil || term == "" {
			continue
		}
		out = append(out, models.Keyword{Keyword: term, Weight: weight})
	}
	return out
}

// fallbackKeywords degrades to the raw message's distinct words, each
// weighted equally, when the LLM call or its parse fails.
func fallbackKeywords(message string) models.KeywordSet {
	words := strings.Fields(strings.ToLower(message))
	seen := make(map[string]bool)
	var out models.KeywordSet
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" || len(w) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, models.Keyword{Keyword: w, Weight: 1})
	}
	return out.Normalize()
}

// validateRelevance asks the LLM whether the retrieved snippets actually
// answer the question, using the same lenient standard as
// original_source's validate_knowledge_relevance: anything touching the
// question's main concepts counts as relevant, and an unparseable
// response defaults to relevant rather than blocking a usable answer.
func (p *Pipeline) validateRelevance(ctx context.Context, in registry.Input, snippets []models.RetrievedSnippet) (bool, error) {
	var contextText strings.Builder
	for _, s := range snippets {
		fmt.Fprintf(&contextText, "=== source: %s (similarity: %.3f) ===\n%s\n\n", s.Source, s.Similarity, s.Content)
	}

	human := fmt.Sprintf("User question: %s\n\nRetrieved knowledge-base content:\n%s", in.Message, contextText.String())
	system := "You judge whether retrieved content is relevant to a question, using a lenient standard: " +
		"if the content touches the question's main concepts, even a specific application or technical detail, treat it as relevant. " +
		"End your response with \"0\" on its own if relevant, or \"-1\" on its own only if it is completely unrelated."

	response, err := p.llm.Complete(ctx, human, system, p.opts)
	if err != nil {
		return false, err
	}
	p.billing.RecordLLMCall(in.SessionID)
	return parseRelevance(response), nil
}

// parseRelevance reads the response's last non-empty line: "0" means
// relevant, "-1" means irrelevant, anything else defaults to relevant
// (original_source's "如果无法确定验证结果...默认认为相关").
func parseRelevance(response string) bool {
	lines := strings.Split(strings.TrimSpace(response), "\n")
	last := ""
	if len(lines) > 0 {
		last = strings.TrimSpace(lines[len(lines)-1])
	}
	switch {
	case strings.Contains(last, "0"):
		return true
	case strings.Contains(last, "-1"):
		return false
	default:
		return true
	}
}

// generalAnswer answers from the model's own knowledge, prefixed with a
// disclaimer, used whenever retrieval comes up empty or validateRelevance
// rejects what was found (original_source's _generate_fallback_answer).
func (p *Pipeline) generalAnswer(ctx context.Context, in registry.Input) (registry.Output, error) {
	p.hub.Publish(in.SessionID, models.ProgressEvent{SessionID: in.SessionID, Stage: models.StageLLMCall, Message: "answering from general knowledge", Timestamp: time.Now()})

	human, system := generalAnswerPrompt(in.Message, in.Files)
	answer, err := p.llm.Complete(ctx, human, system, p.opts)
	if err != nil {
		return registry.Output{}, fmt.Errorf("general answer generation: %w", err)
	}
	p.billing.RecordLLMCall(in.SessionID)
	return registry.Output{Text: generalKnowledgeDisclaimer + answer}, nil
}

func generalAnswerPrompt(message string, files []models.UploadedFile) (human, system string) {
	var sb strings.Builder
	sb.WriteString("Answer this question using your general knowledge.\n\n")
	if len(files) > 0 {
		sb.WriteString("Attached files: ")
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Filename
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(message)
	return sb.String(), "You are a knowledgeable, friendly assistant able to answer questions across domains. " +
		"Answer directly, keep the structure easy to follow, explain technical concepts in plain language, and say so honestly when you're unsure."
}

func (p *Pipeline) composeAnswer(ctx context.Context, in registry.Input, snippets []models.RetrievedSnippet) (string, error) {
	p.hub.Publish(in.SessionID, models.ProgressEvent{SessionID: in.SessionID, Stage: models.StageLLMCall, Message: "generating answer", Timestamp: time.Now()})

	var contextText strings.Builder
	for _, s := range snippets {
		fmt.Fprintf(&contextText, "=== source: %s (similarity: %.3f) ===\n%s\n\n", s.Source, s.Similarity, s.Content)
	}

	human := fmt.Sprintf("Using only the context below, answer the user's question.\n\nContext:\n%s\nQuestion: %s", contextText.String(), in.Message)
	system := "You are a domain expert answering strictly from the supplied context. If the context is insufficient, say so."

	answer, err := p.llm.Complete(ctx, human, system, p.opts)
	if err != nil {
		return "", err
	}
	p.billing.RecordLLMCall(in.SessionID)
	return answer, nil
}

// dedupeSources mirrors original_source's file-key dedup-then-sort:
// unique by FileID (falling back to source name), ordered by
// descending similarity.
func dedupeSources(snippets []models.RetrievedSnippet) []models.Source {
	seen := make(map[string]bool)
	var out []models.Source
	for _, s := range snippets {
		key := s.FileID
		if key == "" {
			key = s.Source
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.Source{
			Content:     s.Content,
			SourceName:  s.Source,
			Similarity:  s.Similarity,
			FileID:      s.FileID,
			Previewable: strings.HasSuffix(strings.ToLower(s.Source), ".pdf"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

func keywordPrompt(message string, files []models.UploadedFile) (human, system string) {
	var sb strings.Builder
	sb.WriteString("Extract the key search terms from this question, one per line as \"term: weight\" where weight is between 0 and 1.\n\n")
	if len(files) > 0 {
		sb.WriteString("Attached files: ")
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Filename
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(message)
	return sb.String(), "You extract weighted search keywords from questions. Respond only with the term:weight lines."
}
