package remotejob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/registry"
	"github.com/buxiuxian/summer-project/pkg/remotejobclient"
)

// FetchHandler implements registry.Handler for models.TaskFetchJobResult,
// grounded on original_source's _execute_retrieval_steps: locate the
// prior submission in history, poll until done, check for per-task
// errors, then summarize.
type FetchHandler struct{ *core }

// SupportedCodes implements registry.Handler.
func (h *FetchHandler) SupportedCodes() []models.TaskCode {
	return []models.TaskCode{models.TaskFetchJobResult}
}

var jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// Handle implements registry.Handler.
func (h *FetchHandler) Handle(ctx context.Context, in registry.Input) (registry.Output, error) {
	if len(in.History) == 0 {
		return registry.Output{Text: "I don't have a record of any job you submitted in this conversation yet. Please submit one first."}, nil
	}

	h.hub.Publish(in.SessionID, progressEvent(in.SessionID, models.StageProcessing, "looking up submitted job"))

	run, err := h.locateRun(ctx, in)
	if err != nil {
		return registry.Output{Text: "I couldn't find a previously submitted job to fetch results for. Please submit one first."}, nil
	}

	h.hub.Publish(in.SessionID, progressEvent(in.SessionID, models.StageProcessing, fmt.Sprintf("waiting on %s", run.ProjectName)))

	if err := h.pollUntilDone(ctx, in, run); err != nil {
		return registry.Output{}, err
	}

	h.hub.Publish(in.SessionID, progressEvent(in.SessionID, models.StageProcessing, "checking for task errors"))
	if err := h.checkTaskErrors(ctx, in, run); err != nil {
		return registry.Output{}, err
	}

	summary := h.summarize(run)
	return registry.Output{Text: summary}, nil
}

// locateRun scans history for fenced JSON submission records
// (spec.md §4.5.2 step 1). If the current message names a scenario
// (e.g. "the snow job"), candidates from every other scenario are
// dropped before selection even starts, so a cross-scenario pick is
// never possible. With more than one remaining candidate it asks the
// LLM to pick the one the user means; on any LLM failure it falls back
// to a fuzzy project-name/scenario/model substring match against the
// message, and finally to the most recently submitted run.
func (h *FetchHandler) locateRun(ctx context.Context, in registry.Input) (*models.RemoteJobRun, error) {
	var candidates []models.RemoteJobRun
	for _, m := range in.History {
		for _, match := range jsonBlockPattern.FindAllStringSubmatch(m.Content, -1) {
			var run models.RemoteJobRun
			if err := json.Unmarshal([]byte(match[1]), &run); err == nil && run.ProjectName != "" {
				candidates = append(candidates, run)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no submitted job found in history")
	}

	if wanted, ok := scenarioFromKeywords(strings.ToLower(in.Message)); ok {
		var filtered []models.RemoteJobRun
		for _, c := range candidates {
			if c.Scenario == wanted {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("no submitted %s job found in history", wanted)
		}
		candidates = filtered
	}

	if len(candidates) == 1 {
		return &candidates[0], nil
	}

	if idx, ok := h.selectByLLM(ctx, in, candidates); ok {
		return &candidates[idx], nil
	}
	if idx, ok := selectByFuzzyMatch(in.Message, candidates); ok {
		return &candidates[idx], nil
	}
	return &candidates[len(candidates)-1], nil
}

func (h *FetchHandler) selectByLLM(ctx context.Context, in registry.Input, candidates []models.RemoteJobRun) (int, bool) {
	var sb strings.Builder
	sb.WriteString("Which of these previously submitted jobs does the user's request refer to? Respond with only the number. ")
	sb.WriteString("Only pick a job whose scenario matches what the user is asking about. If none match, respond with exactly NOT_FOUND.\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s (%s/%s, submitted %s)\n", i, c.ProjectName, c.Scenario, c.Model, c.Timestamp)
	}
	sb.WriteString("\nRequest: ")
	sb.WriteString(in.Message)

	response, err := h.llm.Complete(ctx, sb.String(), "You select the job the user is asking about by its number, or NOT_FOUND if none match its scenario.", h.llmOpts)
	if err != nil {
		return 0, false
	}
	h.billing.RecordLLMCall(in.SessionID)

	trimmed := strings.TrimSpace(response)
	if strings.EqualFold(trimmed, "NOT_FOUND") {
		return 0, false
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 || n >= len(candidates) {
		return 0, false
	}
	return n, true
}

func selectByFuzzyMatch(message string, candidates []models.RemoteJobRun) (int, bool) {
	low := strings.ToLower(message)
	for i := len(candidates) - 1; i >= 0; i-- {
		if strings.Contains(low, strings.ToLower(candidates[i].ProjectName)) {
			return i, true
		}
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		if c.Scenario != "" && strings.Contains(low, strings.ToLower(string(c.Scenario))) {
			return i, true
		}
		if c.Model != "" && strings.Contains(low, strings.ToLower(c.Model)) {
			return i, true
		}
	}
	return 0, false
}

// pollUntilDone polls every RemoteJobPollInterval until every task in
// run reports done or the poll budget elapses (spec.md §4.5.2 step 2:
// "poll every 10s/120s budget"), returning the user-abort code if the
// context is cancelled mid-poll.
func (h *FetchHandler) pollUntilDone(ctx context.Context, in registry.Input, run *models.RemoteJobRun) error {
	deadline := time.Now().Add(h.defaults.RemoteJobPollBudget)
	ticker := time.NewTicker(h.defaults.RemoteJobPollInterval)
	defer ticker.Stop()

	pending := make(map[string]bool, len(run.Tasks))
	for _, t := range run.Tasks {
		pending[t.Name] = true
	}

	for {
		for name := range pending {
			done, failed, message, err := h.remote.Status(ctx, in.Token, run.ProjectName, name)
			if err != nil {
				return fmt.Errorf("polling task %s: %w", name, err)
			}
			if failed {
				return fmt.Errorf("task %s failed: %s", name, message)
			}
			if done {
				delete(pending, name)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for job %s to complete", run.ProjectName)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkTaskErrors fetches the per-task error message and rejects the
// turn unless it is empty or contains the literal success marker (original_source's
// check_task_error / "Jobs completed succesfully" substring test,
// reused via remotejobclient.IsSuccessMessage).
func (h *FetchHandler) checkTaskErrors(ctx context.Context, in registry.Input, run *models.RemoteJobRun) error {
	for _, t := range run.Tasks {
		message, err := h.remote.CheckError(ctx, in.Token, run.ProjectName, t.Name, string(run.Scenario))
		if err != nil {
			return fmt.Errorf("checking errors for task %s: %w", t.Name, err)
		}
		if !remotejobclient.IsSuccessMessage(message) {
			return fmt.Errorf("task %s reported an error: %s", t.Name, message)
		}
	}
	return nil
}

func (h *FetchHandler) summarize(run *models.RemoteJobRun) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %q (%s/%s) completed successfully.\n\n", run.ProjectName, run.Scenario, run.Model)
	for _, t := range run.Tasks {
		fmt.Fprintf(&sb, "- %s (output: %s)\n", t.Name, t.OutputVar)
	}
	sb.WriteString("\nPlot generation against the returned output variables is handled outside this service.")
	return sb.String()
}
