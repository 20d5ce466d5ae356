package ratelimit

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type policyFile struct {
	Limiters []Policy `yaml:"limiters"`
}

// LoadPolicyFile reads limiter policies from a YAML document of the form
//
//	limiters:
//	  - name: bulk
//	    max_requests: 5
//	    window: 60s
func LoadPolicyFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit policy file: %w", err)
	}

	return ParsePolicies(data)
}

func ParsePolicies(data []byte) ([]Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	for _, p := range file.Limiters {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	return file.Limiters, nil
}

// MergePolicies overlays overrides on base by limiter name. The result is
// sorted by name.
func MergePolicies(base, overrides []Policy) []Policy {
	byName := make(map[string]Policy, len(base)+len(overrides))
	for _, p := range base {
		byName[p.Name] = p
	}
	for _, p := range overrides {
		byName[p.Name] = p
	}

	merged := make([]Policy, 0, len(byName))
	for _, p := range byName {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })

	return merged
}
