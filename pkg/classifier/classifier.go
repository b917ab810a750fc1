// Package classifier implements the Intent Classifier (spec.md §4.4):
// one LLM call that resolves a user message (with history and file
// names) to a TaskCode, with a keyword-heuristic fallback when the LLM
// call itself fails. Grounded on original_source's
// app/agent/core/task_classifier.py TaskClassifier.classify_task /
// _extract_task_type_from_response, translated into the teacher's
// idiom: the "last integer on the last non-empty line" extraction
// mirrors tarsy's pkg/agent/controller/react_parser.go line-scanning
// parsers, and the error-to-task-code mapping reuses that file's
// pattern of small regex-driven classifiers over a response string.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/progress"
)

// numberPattern finds signed integers within a line.
var numberPattern = regexp.MustCompile(`-?\d+`)

// errorPatterns are response shapes that indicate the LLM itself failed
// or returned an upstream error message rather than a classification —
// rejecting them prevents misreading an error message's embedded digits
// as a task code (original_source's error_patterns list).
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error code:\s*\d+`),
	regexp.MustCompile(`(?i)^\d{3}\s*error`),
	regexp.MustCompile(`(?i)api\s*error`),
	regexp.MustCompile(`(?i)accountoverdue`),
	regexp.MustCompile(`(?i)request\s*failed`),
	regexp.MustCompile(`(?i)unauthorized`),
	regexp.MustCompile(`(?i)forbidden`),
	regexp.MustCompile(`(?i)rate\s*limit`),
}

// knowledgeKeywords and jobKeywords drive the heuristic fallback used
// when the LLM call errors out for a reason other than timeout/network/
// auth (original_source's _classify_by_keywords).
var knowledgeKeywords = []string{"what is", "explain", "how does", "define", "meaning"}
var jobKeywords = []string{"run", "simulate", "submit", "execute", "retrieval", "inversion"}
var fetchKeywords = []string{"result", "status", "progress", "finished", "done"}

// Classifier implements pkg/orchestrator.Classifier.
type Classifier struct {
	llm     llmclient.Client
	billing *billing.Manager
	hub     *progress.Hub
	opts    llmclient.CompletionOptions
}

// New constructs a Classifier.
func New(llm llmclient.Client, billingMgr *billing.Manager, hub *progress.Hub, opts llmclient.CompletionOptions) *Classifier {
	return &Classifier{llm: llm, billing: billingMgr, hub: hub, opts: opts}
}

// Classify implements spec.md §4.4's single operation.
func (c *Classifier) Classify(ctx context.Context, sessionID string, history []models.ChatMessage, message string) (models.TaskCode, error) {
	c.hub.Publish(sessionID, models.ProgressEvent{SessionID: sessionID, Stage: models.StageLLMCall, Message: "classifying intent", Timestamp: time.Now()})

	select {
	case <-ctx.Done():
		return models.TaskUserAborted, nil
	default:
	}

	human, system := renderPrompt(message, history)

	response, err := c.llm.Complete(ctx, human, system, c.opts)
	if err != nil {
		return classifyError(err, message), nil
	}
	c.billing.RecordLLMCall(sessionID)

	if looksLikeUpstreamError(response) {
		return models.TaskInconclusive, nil
	}

	if code, ok := extractTaskCode(response); ok {
		return code, nil
	}

	return classifyByKeywords(message), nil
}

// classifyError maps an LLM-call failure to a negative task code
// (original_source: timeout → -101, connection/network → -102,
// account/403/forbidden → -103, anything else → keyword fallback).
func classifyError(err error, message string) models.TaskCode {
	if errors.Is(err, context.Canceled) {
		return models.TaskUserAborted
	}
	low := strings.ToLower(err.Error())
	switch {
	case strings.Contains(low, "timeout") || strings.Contains(low, "time out") || errors.Is(err, context.DeadlineExceeded):
		return models.TaskUpstreamTimeout
	case strings.Contains(low, "connection") || strings.Contains(low, "network"):
		return models.TaskUpstreamNetwork
	case strings.Contains(low, "accountoverdue") || strings.Contains(low, "403") || strings.Contains(low, "forbidden") || strings.Contains(low, "auth"):
		return models.TaskUpstreamAuth
	default:
		return classifyByKeywords(message)
	}
}

func looksLikeUpstreamError(response string) bool {
	low := strings.ToLower(response)
	for _, p := range errorPatterns {
		if p.MatchString(low) {
			return true
		}
	}
	for _, code := range []string{"403", "500"} {
		if strings.Contains(low, code) {
			for _, word := range []string{"error", "failed", "forbidden", "unauthorized"} {
				if strings.Contains(low, word) {
					return true
				}
			}
		}
	}
	return false
}

// extractTaskCode scans response from its last non-empty line backward,
// taking the last integer on the first matching line that resolves to
// an allowed code; falling back to a whole-response scan from the end
// (original_source "方法1"/"方法2", two-tier last-line-then-whole-text).
func extractTaskCode(response string) (models.TaskCode, bool) {
	lines := strings.Split(strings.TrimSpace(response), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if code, ok := lastAllowedNumber(line); ok {
			return code, true
		}
	}
	return lastAllowedNumber(response)
}

func lastAllowedNumber(text string) (models.TaskCode, bool) {
	matches := numberPattern.FindAllString(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(matches[i])
		if err != nil {
			continue
		}
		code := models.TaskCode(n)
		if models.IsClassifierAllowed(code) {
			return code, true
		}
	}
	return 0, false
}

func classifyByKeywords(message string) models.TaskCode {
	low := strings.ToLower(message)
	for _, kw := range fetchKeywords {
		if strings.Contains(low, kw) {
			return models.TaskFetchJobResult
		}
	}
	for _, kw := range jobKeywords {
		if strings.Contains(low, kw) {
			return models.TaskSubmitJob
		}
	}
	for _, kw := range knowledgeKeywords {
		if strings.Contains(low, kw) {
			return models.TaskKnowledge
		}
	}
	return models.TaskKnowledge
}

func renderPrompt(message string, history []models.ChatMessage) (human, system string) {
	var sb strings.Builder
	sb.WriteString("Classify the user's request into exactly one task type and end your response with that integer alone on the last line.\n")
	sb.WriteString("1 = knowledge question, 2 = submit a new remote simulation job, 3 = fetch an existing job's result, -1 = none of the above.\n\n")
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, m := range history {
			sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(message)
	return sb.String(), "You are a precise task classifier. Respond with your reasoning followed by the task type integer on its own last line."
}
