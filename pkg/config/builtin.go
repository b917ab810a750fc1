package config

import "time"

// DefaultDefaults returns the built-in values for every tunable spec.md
// §5 names, used when a deployment YAML omits them.
func DefaultDefaults() *Defaults {
	return &Defaults{
		LLMFactor: 1.0,
		JobFactor: 1.0,

		MaxMessages: 50,
		MaxContext:  30,
		MaxTotal:    100,
		MaxAgeDays:  30,

		HeartbeatInterval: 30 * time.Second,
		ProgressBufferCap: 100,
		CatchupCount:      10,

		LLMTimeout:    120 * time.Second,
		CreditTimeout: 30 * time.Second,

		RemoteJobPollInterval: 10 * time.Second,
		RemoteJobPollBudget:   120 * time.Second,
		RemoteJobMaxRetries:   2,
	}
}

// ptr is a small helper for building *float64 literals inline below.
func ptr(f float64) *float64 { return &f }

// BuiltinScenarios returns the three scenario families the remote-job
// workflow supports out of the box (spec.md §4.5.1 step 2, GLOSSARY).
// A deployment's scenarios.yaml may override or extend these.
func BuiltinScenarios() map[ScenarioName]*ScenarioConfig {
	return map[ScenarioName]*ScenarioConfig{
		"snow": {
			Name:         "snow",
			Models:       []string{"hut-rt", "memls"},
			DefaultModel: "hut-rt",
			FixedModes:   nil, // LLM-determined, defaulting to passive
			ParameterSchema: map[string]FieldSpec{
				"snow_depth_m":     {Type: "number", Required: true, Min: ptr(0), Max: ptr(10)},
				"snow_density":     {Type: "number", Required: true, Min: ptr(50), Max: ptr(600)},
				"grain_size_mm":    {Type: "number", Required: true, Min: ptr(0), Max: ptr(5)},
				"frequency_ghz":    {Type: "number", Required: true, Min: ptr(0.1), Max: ptr(100)},
				"incidence_angle":  {Type: "number", Required: false, Min: ptr(0), Max: ptr(90)},
			},
			Documentation: "Snow scenario: models hut-rt (default) and memls; parameters describe a layered snowpack.",
		},
		"soil": {
			Name:         "soil",
			Models:       []string{"dubois"},
			DefaultModel: "dubois",
			FixedModes:   []ObservationMode{"active", "passive"},
			ParameterSchema: map[string]FieldSpec{
				"soil_moisture_vsm": {Type: "number", Required: true, Min: ptr(0), Max: ptr(0.6)},
				"surface_rms_cm":    {Type: "number", Required: true, Min: ptr(0), Max: ptr(5)},
				"clay_fraction":     {Type: "number", Required: false, Min: ptr(0), Max: ptr(1)},
				"frequency_ghz":     {Type: "number", Required: true, Min: ptr(0.1), Max: ptr(100)},
			},
			Documentation: "Soil scenario: single model (dubois); always runs one combined active+passive task.",
		},
		"vegetation": {
			Name:         "vegetation",
			Models:       []string{"water-cloud"},
			DefaultModel: "water-cloud",
			FixedModes:   []ObservationMode{"passive"},
			ParameterSchema: map[string]FieldSpec{
				"lai":             {Type: "number", Required: true, Min: ptr(0), Max: ptr(10)},
				"canopy_height_m": {Type: "number", Required: true, Min: ptr(0), Max: ptr(60)},
				"vwc":             {Type: "number", Required: false, Min: ptr(0), Max: ptr(1)},
				"frequency_ghz":   {Type: "number", Required: true, Min: ptr(0.1), Max: ptr(100)},
			},
			Documentation: "Vegetation scenario: single model (water-cloud); passive observation only.",
		},
	}
}
