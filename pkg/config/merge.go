package config

// mergeScenarios merges built-in and user-defined scenario configurations.
// User-defined scenarios override built-in ones of the same name,
// matching tarsy's pkg/config/merge.go override-by-key pattern.
func mergeScenarios(builtin, user map[ScenarioName]*ScenarioConfig) map[ScenarioName]*ScenarioConfig {
	result := make(map[ScenarioName]*ScenarioConfig, len(builtin))
	for name, s := range builtin {
		cp := *s
		result[name] = &cp
	}
	for name, s := range user {
		cp := *s
		result[name] = &cp
	}
	return result
}
