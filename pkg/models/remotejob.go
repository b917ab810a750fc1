package models

// Scenario is one of the three remote-job problem families.
type Scenario string

const (
	ScenarioSnow       Scenario = "snow"
	ScenarioSoil       Scenario = "soil"
	ScenarioVegetation Scenario = "vegetation"
)

// ObservationMode is the physical quantity a task simulates.
type ObservationMode string

const (
	ModeActive  ObservationMode = "active"  // backscatter, output_var "bs"
	ModePassive ObservationMode = "passive" // brightness temperature, output_var "tb"
)

// OutputVar maps an ObservationMode to its remote-job output variable name.
func (m ObservationMode) OutputVar() string {
	if m == ModeActive {
		return "bs"
	}
	return "tb"
}

// RemoteJobTask is one unit of work submitted to the remote simulation service.
type RemoteJobTask struct {
	Name      string
	OutputVar string
}

// DataDict is a flat, scenario-specific parameter map for one task,
// including the system fields injected at submission time.
type DataDict map[string]any

// RemoteJobRun is the full structured descriptor of one submission,
// embedded as a fenced JSON block in the response text so the
// retrieval workflow can locate it later in conversation history.
type RemoteJobRun struct {
	ProjectName string          `json:"project_name"`
	Scenario    Scenario        `json:"scenario_info"`
	Model       string          `json:"model_name"`
	Modes       []ObservationMode `json:"observation_modes"`
	Tasks       []RemoteJobTask `json:"tasks"`
	DataDicts   []DataDict      `json:"data_dicts"`
	Timestamp   string          `json:"timestamp"`
}
