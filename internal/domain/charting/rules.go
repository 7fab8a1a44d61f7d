package charting

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Rule maps a planned service to a tooth condition. A rule matches either on
// the service category or on any of its keywords found in the service name.
type Rule struct {
	Category  string   `mapstructure:"category"`
	Keywords  []string `mapstructure:"keywords"`
	Condition string   `mapstructure:"condition"`
}

type Rules struct {
	Rules   []Rule `mapstructure:"rules"`
	Default string `mapstructure:"default"`
}

// DefaultRules is the built-in mapping used when no rules file is configured.
func DefaultRules() *Rules {
	return &Rules{
		Rules: []Rule{
			{Keywords: []string{"crown"}, Condition: "Crown"},
			{Keywords: []string{"root canal"}, Condition: "Root Canal"},
			{Keywords: []string{"filling", "fill"}, Condition: "For Filling"},
			{Keywords: []string{"extraction", "remove"}, Condition: "Missing"},
		},
		Default: "For Filling",
	}
}

// LoadRules reads a rules table from a YAML, JSON or TOML file. An empty
// path yields DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read charting rules %s: %w", path, err)
	}
	var r Rules
	if err := v.Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("decode charting rules %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("charting rules %s: %w", path, err)
	}
	return &r, nil
}

func (r *Rules) Validate() error {
	if strings.TrimSpace(r.Default) == "" {
		return fmt.Errorf("default condition is required")
	}
	for i, rule := range r.Rules {
		if strings.TrimSpace(rule.Condition) == "" {
			return fmt.Errorf("rule %d has no condition", i)
		}
		if rule.Category == "" && len(rule.Keywords) == 0 {
			return fmt.Errorf("rule %d matches nothing", i)
		}
	}
	return nil
}

// Derive returns the condition implied by performing a service on a tooth.
// Category rules are tried first, then keyword rules in table order, then
// the default.
func (r *Rules) Derive(serviceName, category string) string {
	if category != "" {
		for _, rule := range r.Rules {
			if rule.Category != "" && strings.EqualFold(rule.Category, category) {
				return rule.Condition
			}
		}
	}
	name := strings.ToLower(serviceName)
	for _, rule := range r.Rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return rule.Condition
			}
		}
	}
	return r.Default
}
