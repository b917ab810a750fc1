package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinScenarios_EveryScenarioPassesValidation(t *testing.T) {
	cfg := &Config{
		Mode:      ModeLocal,
		Defaults:  DefaultDefaults(),
		Scenarios: NewScenarioRegistry(BuiltinScenarios()),
	}
	cfg.Defaults.LocalToken = "tok"
	assert.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestBuiltinScenarios_SoilAndVegetationHaveFixedModes(t *testing.T) {
	scenarios := BuiltinScenarios()
	assert.NotEmpty(t, scenarios["soil"].FixedModes)
	assert.NotEmpty(t, scenarios["vegetation"].FixedModes)
	assert.Nil(t, scenarios["snow"].FixedModes)
}

func TestDefaultDefaults_PositiveFactorsAndRetries(t *testing.T) {
	d := DefaultDefaults()
	require.Positive(t, d.LLMFactor)
	require.Positive(t, d.JobFactor)
	assert.GreaterOrEqual(t, d.RemoteJobMaxRetries, 0)
}
