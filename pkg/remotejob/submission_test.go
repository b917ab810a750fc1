package remotejob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buxiuxian/summer-project/pkg/billing"
	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/llmclient"
	"github.com/buxiuxian/summer-project/pkg/models"
	"github.com/buxiuxian/summer-project/pkg/progress"
	"github.com/buxiuxian/summer-project/pkg/registry"
)

type sequenceLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *sequenceLLM) Complete(ctx context.Context, humanText, systemText string, opts llmclient.CompletionOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return "", errors.New("sequenceLLM: no more canned responses")
	}
	return f.responses[i], nil
}

type fakeRemoteClient struct {
	submitErr     error
	submitFailFor int // Submit fails this many times before succeeding
	submitCalls   int
	statusDone    map[string]bool
	statusFailed  map[string]string
	checkErrMsgs  map[string]string

	lastToken       string
	lastProjectName string
	lastTasks       []models.RemoteJobTask
	lastDataDicts   []models.DataDict
}

func newFakeRemoteClient() *fakeRemoteClient {
	return &fakeRemoteClient{
		statusDone:   make(map[string]bool),
		statusFailed: make(map[string]string),
		checkErrMsgs: make(map[string]string),
	}
}

func (f *fakeRemoteClient) Submit(ctx context.Context, token, projectName string, tasks []models.RemoteJobTask, dataDicts []models.DataDict) error {
	f.submitCalls++
	f.lastToken = token
	f.lastProjectName = projectName
	f.lastTasks = tasks
	f.lastDataDicts = dataDicts
	if f.submitCalls <= f.submitFailFor {
		return f.submitErr
	}
	return nil
}

func (f *fakeRemoteClient) Status(ctx context.Context, token, projectName, taskName string) (bool, bool, string, error) {
	if msg, ok := f.statusFailed[taskName]; ok {
		return false, true, msg, nil
	}
	return f.statusDone[taskName], false, "", nil
}

func (f *fakeRemoteClient) CheckError(ctx context.Context, token, projectName, taskName, scenarioName string) (string, error) {
	return f.checkErrMsgs[taskName], nil
}

func testScenarioRegistry() *config.ScenarioRegistry {
	return config.NewScenarioRegistry(map[config.ScenarioName]*config.ScenarioConfig{
		"snow": {
			Name:         "snow",
			Models:       []string{"hut-rt"},
			DefaultModel: "hut-rt",
			ParameterSchema: map[string]config.FieldSpec{
				"depth": {Type: "number", Required: true},
			},
			Documentation: "snow scenario",
		},
	})
}

func testScenarioRegistryWithSoil() *config.ScenarioRegistry {
	return config.NewScenarioRegistry(map[config.ScenarioName]*config.ScenarioConfig{
		"soil": {
			Name:         "soil",
			Models:       []string{"dubois"},
			DefaultModel: "dubois",
			FixedModes:   []config.ObservationMode{"active", "passive"},
			ParameterSchema: map[string]config.FieldSpec{
				"moisture": {Type: "number", Required: true},
			},
			Documentation: "soil scenario",
		},
	})
}

func testDefaults() *config.Defaults {
	return &config.Defaults{
		RemoteJobMaxRetries:   2,
		RemoteJobPollInterval: time.Millisecond,
		RemoteJobPollBudget:   50 * time.Millisecond,
	}
}

func newTestSubmitHandler(llm llmclient.Client, remote *fakeRemoteClient) (*SubmitHandler, *billing.Manager) {
	return newTestSubmitHandlerWithRegistry(llm, remote, testScenarioRegistry())
}

func newTestSubmitHandlerWithRegistry(llm llmclient.Client, remote *fakeRemoteClient, scenarios *config.ScenarioRegistry) (*SubmitHandler, *billing.Manager) {
	mgr := billing.NewManager()
	hub := progress.NewHub(100, 10, time.Minute)
	submit, _ := New(llm, remote, scenarios, testDefaults(), mgr, hub, llmclient.CompletionOptions{})
	return submit, mgr
}

func TestSubmitHandler_HappyPath(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"scenario: snow\nmodel: hut-rt\nmodes: passive",
		`{"depth": 1.5}`,
	}}
	remote := newFakeRemoteClient()
	h, mgr := newTestSubmitHandler(llm, remote)

	out, err := h.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "run a snow simulation 1.5m deep"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Job submitted for project")
	assert.Equal(t, 1, remote.submitCalls)
	assert.Equal(t, 2, mgr.Snapshot("s1").LLMCalls)
	assert.Equal(t, 1, mgr.Snapshot("s1").RemoteJobs)
}

func TestSubmitHandler_RetriesOnSubmissionRejection(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"scenario: snow\nmodel: hut-rt\nmodes: passive",
		`{"depth": 1.5}`,
		`{"depth": 2.0}`,
	}}
	remote := newFakeRemoteClient()
	remote.submitErr = errors.New("rejected: bad params")
	remote.submitFailFor = 1
	h, mgr := newTestSubmitHandler(llm, remote)

	out, err := h.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "run a snow simulation"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Job submitted for project")
	assert.Equal(t, 2, remote.submitCalls, "first submission is rejected, the retry succeeds")
	assert.Equal(t, 1, mgr.Snapshot("s1").RemoteJobs, "only the eventually-successful submission is billed")
}

func TestSubmitHandler_FailsAfterExhaustingRetries(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"scenario: snow\nmodel: hut-rt\nmodes: passive",
		`{"depth": 1.5}`,
		`{"depth": 1.5}`,
		`{"depth": 1.5}`,
	}}
	remote := newFakeRemoteClient()
	remote.submitErr = errors.New("always rejected")
	remote.submitFailFor = 1000
	h, _ := newTestSubmitHandler(llm, remote)

	_, err := h.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "run a snow simulation"})
	assert.Error(t, err)
	assert.Equal(t, testDefaults().RemoteJobMaxRetries+1, remote.submitCalls)
}

func TestSubmitHandler_ScenarioAnalysisFallsBackOnLLMError(t *testing.T) {
	llm := &sequenceLLM{err: errors.New("llm down")}
	remote := newFakeRemoteClient()
	h, _ := newTestSubmitHandler(llm, remote)

	scenario, model, modes, err := h.analyzeScenario(context.Background(), registry.Input{Message: "how deep is the snow pack"})
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioSnow, scenario)
	assert.Equal(t, "hut-rt", model)
	assert.Equal(t, []models.ObservationMode{models.ModePassive}, modes)
}

func TestFallbackScenario_DetectsSoilKeyword(t *testing.T) {
	scenario, _, modes, err := fallbackScenario("what is the soil moisture here")
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioSoil, scenario)
	assert.Contains(t, modes, models.ModeActive)
	assert.Contains(t, modes, models.ModePassive)
}

func TestFallbackScenario_DetectsVegetationKeyword(t *testing.T) {
	scenario, _, _, err := fallbackScenario("what about the canopy LAI")
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioVegetation, scenario)
}

func TestFallbackScenario_DefaultsToSnow(t *testing.T) {
	scenario, _, _, err := fallbackScenario("run a generic simulation")
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioSnow, scenario)
}

func TestParseDataDict_ExtractsFencedJSON(t *testing.T) {
	dict, err := parseDataDict("Here you go:\n```json\n{\"depth\": 1.2}\n```\nHope that helps.")
	require.NoError(t, err)
	assert.Equal(t, 1.2, dict["depth"])
}

func TestParseDataDict_NoJSONObjectErrors(t *testing.T) {
	_, err := parseDataDict("I don't have an answer for you.")
	assert.Error(t, err)
}

func TestParseScenarioAnalysis_ParsesAllThreeLines(t *testing.T) {
	scenario, model, modes := parseScenarioAnalysis("scenario: Snow\nmodel: HUT-RT\nmodes: active, passive")
	assert.Equal(t, "snow", scenario)
	assert.Equal(t, "hut-rt", model)
	assert.Equal(t, []string{"active", "passive"}, modes)
}

func TestResolveModes_FixedModesOverridesRequest(t *testing.T) {
	spec := &config.ScenarioConfig{FixedModes: []config.ObservationMode{"active", "passive"}}
	modes := resolveModes(spec, []string{"passive"})
	require.Len(t, modes, 2)
}

func TestResolveModes_DefaultsToPassiveWhenNothingRequested(t *testing.T) {
	spec := &config.ScenarioConfig{}
	modes := resolveModes(spec, nil)
	assert.Equal(t, []models.ObservationMode{models.ModePassive}, modes)
}

func TestSubmitHandler_SoilScenarioProducesOneCombinedTask(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"scenario: soil\nmodel: dubois\nmodes: active, passive",
		`{"moisture": 0.3}`,
	}}
	remote := newFakeRemoteClient()
	h, mgr := newTestSubmitHandlerWithRegistry(llm, remote, testScenarioRegistryWithSoil())

	out, err := h.Handle(context.Background(), registry.Input{SessionID: "s1", Token: "tok-123", Message: "what is the soil moisture here"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Job submitted for project")
	assert.Equal(t, 2, mgr.Snapshot("s1").LLMCalls, "one call for scenario analysis, one for parameters - soil never loops per mode")
	require.Len(t, remote.lastTasks, 1, "soil always collapses to exactly one combined task")
	assert.Equal(t, "bs", remote.lastTasks[0].OutputVar)
	require.Len(t, remote.lastDataDicts, 1)
	assert.Equal(t, "bs", remote.lastDataDicts[0]["output_var"])
}

func TestSubmitHandler_InjectsSystemFields(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"scenario: snow\nmodel: hut-rt\nmodes: passive",
		`{"depth": 1.5}`,
	}}
	remote := newFakeRemoteClient()
	h, _ := newTestSubmitHandler(llm, remote)

	_, err := h.Handle(context.Background(), registry.Input{SessionID: "s1", Token: "tok-abc", Message: "run a snow simulation 1.5m deep"})
	require.NoError(t, err)
	require.Len(t, remote.lastDataDicts, 1)
	dict := remote.lastDataDicts[0]
	assert.Equal(t, "tok-abc", dict["token"])
	assert.Equal(t, remote.lastProjectName, dict["project_name"])
	assert.Equal(t, remote.lastTasks[0].Name, dict["task_name"])
	assert.Equal(t, "snow", dict["scenario_flag"])
	assert.Equal(t, "hut-rt", dict["algorithm"])
	assert.Equal(t, 1, dict["level_required"])
	assert.Equal(t, 1, dict["force_update_flag"])
	assert.Equal(t, 2, dict["core_num"])
	assert.Equal(t, "tb", dict["output_var"])
}

func TestSubmitHandler_TaskNamingIncludesModeAndTimestamp(t *testing.T) {
	llm := &sequenceLLM{responses: []string{
		"scenario: snow\nmodel: hut-rt\nmodes: passive",
		`{"depth": 1.5}`,
	}}
	remote := newFakeRemoteClient()
	h, _ := newTestSubmitHandler(llm, remote)

	_, err := h.Handle(context.Background(), registry.Input{SessionID: "s1", Message: "run a snow simulation"})
	require.NoError(t, err)
	require.Len(t, remote.lastTasks, 1)
	assert.Contains(t, remote.lastTasks[0].Name, "snow-hut-rt-passive-", "single-mode tasks aren't index-suffixed")
}

func TestScenarioFromKeywords_DetectsChineseSnowKeyword(t *testing.T) {
	scenario, ok := scenarioFromKeywords("获取雪地任务的结果")
	require.True(t, ok)
	assert.Equal(t, models.ScenarioSnow, scenario)
}
