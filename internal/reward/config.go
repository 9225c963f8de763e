package reward

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// RuleConfig holds the bases of the deterministic reward rule.
type RuleConfig struct {
	RecyclableBase float64 `yaml:"recyclable_base" mapstructure:"recyclable_base"`
	TrashBase      float64 `yaml:"trash_base" mapstructure:"trash_base"`
}

// DefaultRuleConfig returns the canonical bases: 10 for recyclables, 5 for trash.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		RecyclableBase: 10,
		TrashBase:      5,
	}
}

// ValidateRuleConfig checks that both bases are finite and positive.
func ValidateRuleConfig(c RuleConfig) error {
	var errs []string

	bases := []struct {
		name string
		v    float64
	}{
		{"recyclable_base", c.RecyclableBase},
		{"trash_base", c.TrashBase},
	}
	for _, b := range bases {
		if math.IsNaN(b.v) || math.IsInf(b.v, 0) || b.v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", b.name))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("reward: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
