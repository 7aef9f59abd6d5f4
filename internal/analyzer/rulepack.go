package analyzer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"termbridge/internal/domain"
)

// rulePackFile is the on-disk YAML shape for user-defined rule packs:
//
//	rules:
//	  - name: docker-prune
//	    pattern: "docker system prune"
//	    suggestion: "This removes all unused containers, networks and images"
//	    severity: medium
type rulePackFile struct {
	Rules []rulePackEntry `yaml:"rules"`
}

type rulePackEntry struct {
	Name       string `yaml:"name"`
	Pattern    string `yaml:"pattern"`
	Suggestion string `yaml:"suggestion"`
	Severity   string `yaml:"severity"`
}

// LoadRulePack reads additional rules from a YAML file. Patterns compile
// the same way config security patterns do: regex when they contain
// metacharacters, case-insensitive substring otherwise.
func LoadRulePack(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read rule pack %s: %w", path, err)
	}

	var pack rulePackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("cannot parse rule pack %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(pack.Rules))
	for i, entry := range pack.Rules {
		if entry.Pattern == "" {
			return nil, fmt.Errorf("rule pack %s: rule %d has no pattern", path, i)
		}
		if entry.Suggestion == "" {
			return nil, fmt.Errorf("rule pack %s: rule %q has no suggestion", path, entry.Name)
		}
		if !domain.ValidRisk(entry.Severity) {
			return nil, fmt.Errorf("rule pack %s: rule %q has invalid severity %q (want low, medium or high)",
				path, entry.Name, entry.Severity)
		}
		matcher, err := CompileMatcher(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule pack %s: rule %q: %w", path, entry.Name, err)
		}
		rules = append(rules, Rule{
			Name:       entry.Name,
			Suggestion: entry.Suggestion,
			Severity:   domain.RiskLevel(entry.Severity),
			Matches:    matcher,
		})
	}
	return rules, nil
}

// LoadRulePacks loads every listed pack and concatenates the rules in
// file order, after the defaults they extend.
func LoadRulePacks(paths []string) ([]Rule, error) {
	var rules []Rule
	for _, p := range paths {
		loaded, err := LoadRulePack(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, loaded...)
	}
	return rules, nil
}
