// Package remotejob implements the Remote-Job sub-workflow (spec.md
// §4.5): scenario/model/mode selection, structured-parameter generation,
// submit-with-retry, and result retrieval/polling. Grounded on
// original_source's app/agent/workflows/rshub_workflow_impl.py
// (submission/retrieval step sequences) and rshub_task_extractor.py
// (locating a prior submission in conversation history).
package remotejob

import (
	"fmt"

	"github.com/buxiuxian/summer-project/pkg/config"
	"github.com/buxiuxian/summer-project/pkg/models"
)

// ValidateDataDict checks dict against spec's flat parameter schema —
// the hand-rolled structural validator spec.md §9 substitutes for
// evaluating LLM-generated code: each declared field's type, presence
// (if required), and numeric range are checked; unlisted keys are
// passed through untouched since system fields are injected separately.
func ValidateDataDict(spec *config.ScenarioConfig, dict models.DataDict) error {
	for name, field := range spec.ParameterSchema {
		value, present := dict[name]
		if !present {
			if field.Required {
				return fmt.Errorf("missing required parameter %q", name)
			}
			continue
		}
		if err := validateField(name, field, value); err != nil {
			return err
		}
	}
	return nil
}

func validateField(name string, field config.FieldSpec, value any) error {
	switch field.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q must be a bool", name)
		}
	case "number":
		n, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("parameter %q must be a number", name)
		}
		if field.Min != nil && n < *field.Min {
			return fmt.Errorf("parameter %q is below minimum %v", name, *field.Min)
		}
		if field.Max != nil && n > *field.Max {
			return fmt.Errorf("parameter %q is above maximum %v", name, *field.Max)
		}
	default:
		// Unknown declared type: nothing to check beyond presence.
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
