// Package remotejobclient implements the outbound remote simulation
// service collaborator (spec.md §6 "Outbound remote-job"): submit,
// poll-status, and check-error operations. Grounded on original_source's
// app/agent/workflows/rshub_components.py task_manager
// (wait_for_tasks/check_task_error) and rshub_workflow_impl.py's
// _step_submit_tasks, translated from its polling-loop-with-injected-
// client call shape into three discrete collaborator methods the
// workflow in pkg/remotejob drives itself.
package remotejobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buxiuxian/summer-project/pkg/models"
)

// jobSubmittedMarker is the literal success string the remote service
// returns, preserved verbatim from original_source
// ("result.get('result') != 'Job submitted!'").
const jobSubmittedMarker = "Job submitted!"

// successMarker is the literal substring check_task_error treats as
// "not actually an error" (original_source: "Jobs completed succesfully").
const successMarker = "Jobs completed succesfully"

// ErrSubmissionRejected is returned by Submit when the service responds
// without the literal success marker.
var ErrSubmissionRejected = fmt.Errorf("remote job service did not confirm submission")

// Client is the interface pkg/remotejob depends on.
type Client interface {
	Submit(ctx context.Context, token, projectName string, tasks []models.RemoteJobTask, dataDicts []models.DataDict) error
	Status(ctx context.Context, token, projectName, taskName string) (done bool, failed bool, message string, err error)
	CheckError(ctx context.Context, token, projectName, taskName, scenarioName string) (message string, err error)
}

// HTTPClient calls the remote simulation service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New creates an HTTPClient with the given base URL and timeout.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type submitRequest struct {
	ProjectName string                `json:"project_name"`
	Tasks       []models.RemoteJobTask `json:"tasks"`
	DataDicts   []models.DataDict     `json:"data_dicts"`
}

type submitResponse struct {
	Result string `json:"result"`
}

// Submit implements the literal-string-checked submission operation.
func (c *HTTPClient) Submit(ctx context.Context, token, projectName string, tasks []models.RemoteJobTask, dataDicts []models.DataDict) error {
	var out submitResponse
	if err := c.post(ctx, "/v1/submit", token, submitRequest{ProjectName: projectName, Tasks: tasks, DataDicts: dataDicts}, &out); err != nil {
		return err
	}
	if out.Result != jobSubmittedMarker {
		return ErrSubmissionRejected
	}
	return nil
}

type statusRequest struct {
	ProjectName string `json:"project_name"`
	TaskName    string `json:"task_name"`
}

type statusResponse struct {
	Done    bool   `json:"done"`
	Failed  bool   `json:"failed"`
	Message string `json:"message"`
}

// Status implements one poll of a task's state.
func (c *HTTPClient) Status(ctx context.Context, token, projectName, taskName string) (bool, bool, string, error) {
	var out statusResponse
	if err := c.post(ctx, "/v1/status", token, statusRequest{ProjectName: projectName, TaskName: taskName}, &out); err != nil {
		return false, false, "", err
	}
	return out.Done, out.Failed, out.Message, nil
}

type checkErrorRequest struct {
	ProjectName  string `json:"project_name"`
	TaskName     string `json:"task_name"`
	ScenarioName string `json:"scenario_name"`
}

type checkErrorResponse struct {
	Message string `json:"message"`
}

// CheckError implements the per-task error-message fetch. The caller
// (pkg/remotejob) is responsible for the literal successMarker check
// against the returned message.
func (c *HTTPClient) CheckError(ctx context.Context, token, projectName, taskName, scenarioName string) (string, error) {
	var out checkErrorResponse
	if err := c.post(ctx, "/v1/check-error", token, checkErrorRequest{ProjectName: projectName, TaskName: taskName, ScenarioName: scenarioName}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *HTTPClient) post(ctx context.Context, path, token string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal remote job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build remote job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote job request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("remote job auth error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("remote job service error: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode remote job response: %w", err)
	}
	return nil
}

// IsSuccessMessage reports whether a check-error message means the
// task actually succeeded (original_source's literal substring test).
func IsSuccessMessage(message string) bool {
	return message == "" || strings.Contains(message, successMarker)
}
