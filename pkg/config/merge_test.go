package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeScenarios_UserOverridesBuiltinOfSameName(t *testing.T) {
	builtin := map[ScenarioName]*ScenarioConfig{
		"snow": {Name: "snow", DefaultModel: "builtin-model"},
	}
	user := map[ScenarioName]*ScenarioConfig{
		"snow": {Name: "snow", DefaultModel: "user-model"},
	}

	merged := mergeScenarios(builtin, user)
	assert.Equal(t, "user-model", merged["snow"].DefaultModel)
}

func TestMergeScenarios_DistinctNamesAreBothKept(t *testing.T) {
	builtin := map[ScenarioName]*ScenarioConfig{
		"snow": {Name: "snow"},
		"soil": {Name: "soil"},
	}
	user := map[ScenarioName]*ScenarioConfig{
		"vegetation": {Name: "vegetation"},
	}

	merged := mergeScenarios(builtin, user)
	assert.Len(t, merged, 3)
}

func TestMergeScenarios_DoesNotMutateInputs(t *testing.T) {
	builtin := map[ScenarioName]*ScenarioConfig{
		"snow": {Name: "snow", DefaultModel: "builtin-model"},
	}
	user := map[ScenarioName]*ScenarioConfig{
		"snow": {Name: "snow", DefaultModel: "user-model"},
	}

	mergeScenarios(builtin, user)
	assert.Equal(t, "builtin-model", builtin["snow"].DefaultModel)
}
