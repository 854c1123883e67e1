package coverage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tkb/internal/model"
)

// LoadResults reads an externally supplied test-result map: a YAML mapping
// of test node ids to "pass" or "fail". Test execution happens outside; this
// file is the only channel for outcomes.
func LoadResults(path string) (model.TestResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse results file: %w", err)
	}

	results := make(model.TestResults, len(raw))
	for id, outcome := range raw {
		switch model.TestOutcome(outcome) {
		case model.OutcomePass, model.OutcomeFail:
			results[id] = model.TestOutcome(outcome)
		default:
			return nil, fmt.Errorf("test %s has outcome %q, want pass or fail", id, outcome)
		}
	}
	return results, nil
}
