package config

import (
	"fmt"
	"sync"
)

// ScenarioRegistry provides read access to scenario configurations,
// mirroring tarsy's pkg/config registry-getter pattern (AgentRegistry,
// ChainRegistry, etc.) generalized to a single registry this domain needs.
type ScenarioRegistry struct {
	mu        sync.RWMutex
	scenarios map[ScenarioName]*ScenarioConfig
}

// NewScenarioRegistry builds a registry from a resolved scenario map.
func NewScenarioRegistry(scenarios map[ScenarioName]*ScenarioConfig) *ScenarioRegistry {
	return &ScenarioRegistry{scenarios: scenarios}
}

// Get retrieves a scenario by name.
func (r *ScenarioRegistry) Get(name ScenarioName) (*ScenarioConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	return s, nil
}

// GetAll returns all registered scenarios.
func (r *ScenarioRegistry) GetAll() map[ScenarioName]*ScenarioConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ScenarioName]*ScenarioConfig, len(r.scenarios))
	for k, v := range r.scenarios {
		out[k] = v
	}
	return out
}
