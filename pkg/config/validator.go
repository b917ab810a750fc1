package config

import "fmt"

// Validator validates a fully-loaded Config, mirroring tarsy's
// pkg/config/validator.go ValidateAll entry point.
type Validator struct {
	cfg *Config
}

// NewValidator constructs a Validator for cfg.
func NewValidator(cfg *Config) *Validator { return &Validator{cfg: cfg} }

// ValidateAll runs every validation rule and returns the first failure.
func (v *Validator) ValidateAll() error {
	if !v.cfg.Mode.Valid() {
		return NewValidationError("config", "mode", "", fmt.Errorf("%w: %q", ErrInvalidMode, v.cfg.Mode))
	}
	if err := v.validateDefaults(); err != nil {
		return err
	}
	if err := v.validateScenarios(); err != nil {
		return err
	}
	if v.cfg.Mode == ModeLocal && v.cfg.Defaults.LocalToken == "" {
		return NewValidationError("config", "local_token", "", fmt.Errorf("%w: local mode requires a process-configured token", ErrMissingField))
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d.LLMFactor < 0 || d.JobFactor < 0 {
		return NewValidationError("defaults", "factors", "", fmt.Errorf("%w: factors must be non-negative", ErrInvalidValue))
	}
	if d.MaxMessages < 2 {
		return NewValidationError("defaults", "max_messages", "", fmt.Errorf("%w: must be >= 2", ErrInvalidValue))
	}
	if d.MaxContext < 2 {
		return NewValidationError("defaults", "max_context", "", fmt.Errorf("%w: must be >= 2", ErrInvalidValue))
	}
	if d.RemoteJobMaxRetries < 0 {
		return NewValidationError("defaults", "remote_job_max_retries", "", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateScenarios() error {
	for name, s := range v.cfg.Scenarios.GetAll() {
		if len(s.Models) == 0 {
			return NewValidationError("scenario", string(name), "models", fmt.Errorf("%w: must declare at least one model", ErrInvalidValue))
		}
		if s.DefaultModel == "" {
			return NewValidationError("scenario", string(name), "default_model", fmt.Errorf("%w: must set a default model", ErrMissingField))
		}
		found := false
		for _, m := range s.Models {
			if m == s.DefaultModel {
				found = true
				break
			}
		}
		if !found {
			return NewValidationError("scenario", string(name), "default_model", fmt.Errorf("%w: default_model must be one of models", ErrInvalidValue))
		}
	}
	return nil
}
