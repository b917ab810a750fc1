package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *ScenarioRegistry {
	return NewScenarioRegistry(map[ScenarioName]*ScenarioConfig{
		"snow": {Name: "snow", Models: []string{"m1"}, DefaultModel: "m1"},
		"soil": {Name: "soil", Models: []string{"m2"}, DefaultModel: "m2"},
	})
}

func TestScenarioRegistry_GetReturnsKnownScenario(t *testing.T) {
	r := testRegistry()
	s, err := r.Get("snow")
	require.NoError(t, err)
	assert.Equal(t, ScenarioName("snow"), s.Name)
}

func TestScenarioRegistry_GetUnknownScenarioErrors(t *testing.T) {
	r := testRegistry()
	_, err := r.Get("vegetation")
	assert.Error(t, err)
}

func TestScenarioRegistry_GetAllReturnsEveryScenario(t *testing.T) {
	r := testRegistry()
	all := r.GetAll()
	assert.Len(t, all, 2)
}
