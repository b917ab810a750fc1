package config

import "time"

// Defaults holds the system-wide tunables named throughout spec.md §5.
type Defaults struct {
	LLMFactor float64 `yaml:"llm_factor"`
	JobFactor float64 `yaml:"job_factor"`

	MaxMessages int `yaml:"max_messages"`
	MaxContext  int `yaml:"max_context"`
	MaxTotal    int `yaml:"max_total"`
	MaxAgeDays  int `yaml:"max_age_days"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ProgressBufferCap int           `yaml:"progress_buffer_cap"`
	CatchupCount      int           `yaml:"catchup_count"`

	LLMTimeout    time.Duration `yaml:"llm_timeout"`
	CreditTimeout time.Duration `yaml:"credit_timeout"`

	RemoteJobPollInterval time.Duration `yaml:"remote_job_poll_interval"`
	RemoteJobPollBudget   time.Duration `yaml:"remote_job_poll_budget"`
	RemoteJobMaxRetries   int           `yaml:"remote_job_max_retries"`

	// LocalToken is the process-configured token used in local mode
	// (spec.md §4.8 Auth).
	LocalToken string `yaml:"local_token"`
}

// EndpointsConfig carries the base URLs of the five outbound collaborators
// spec.md §6 names: LLM, RAG, remote-job, credit, and remote session-store.
type EndpointsConfig struct {
	LLMURL          string `yaml:"llm_url"`
	RAGURL          string `yaml:"rag_url"`
	RemoteJobURL    string `yaml:"remote_job_url"`
	CreditURL       string `yaml:"credit_url"`
	SessionStoreURL string `yaml:"session_store_url"`
}

// FieldSpec describes one parameter a scenario's data dict must or may carry,
// used by pkg/remotejob's DSL validator (spec.md §9 structured parameter DSL).
type FieldSpec struct {
	Type     string   `yaml:"type"` // "string" | "number" | "bool"
	Required bool     `yaml:"required,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
}

// ScenarioConfig is the built-in-or-user-defined description of one
// remote-job scenario (spec.md §4.5.1 step 2, GLOSSARY "Scenario"/"Model").
type ScenarioConfig struct {
	Name ScenarioName `yaml:"name"`

	// Models lists the candidate models for this scenario; DefaultModel
	// is used when the LLM classification step is ambiguous among
	// multiple candidates (snow only; soil/vegetation have exactly one).
	Models       []string `yaml:"models"`
	DefaultModel string   `yaml:"default_model"`

	// FixedModes is non-nil when the scenario's observation modes are
	// not LLM-determined (soil: combined active+passive; vegetation:
	// passive only). Nil means snow-style LLM determination, defaulting
	// to passive.
	FixedModes []ObservationMode `yaml:"fixed_modes,omitempty"`

	// ParameterSchema names the flat parameter keys a generated data
	// dict for this scenario must satisfy, keyed by parameter name.
	ParameterSchema map[string]FieldSpec `yaml:"parameter_schema"`

	// Documentation is injected into the parameter-generation prompt.
	Documentation string `yaml:"documentation"`
}

// ScenarioName and ObservationMode are plain string types mirroring
// pkg/models.Scenario / pkg/models.ObservationMode; kept independent of
// pkg/models to avoid an import cycle (config is imported by nearly
// every other package). pkg/remotejob converts between the two at its
// boundary with a simple string cast.
type ScenarioName string

type ObservationMode string

// Config is the umbrella object returned by Initialize and threaded
// through the rest of the system, mirroring tarsy's pkg/config.Config
// umbrella-with-getters shape.
type Config struct {
	configDir string

	Mode      Mode
	Defaults  *Defaults
	Endpoints *EndpointsConfig
	Scenarios *ScenarioRegistry
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string { return c.configDir }

// ConfigStats summarizes loaded configuration for startup logging.
type ConfigStats struct {
	Scenarios int
	Mode      Mode
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{Scenarios: len(c.Scenarios.GetAll()), Mode: c.Mode}
}

// GetScenario retrieves a scenario configuration by name.
func (c *Config) GetScenario(name ScenarioName) (*ScenarioConfig, error) {
	return c.Scenarios.Get(name)
}
