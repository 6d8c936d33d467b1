// Package tenant applies the syntactic rules for tenant identifiers
// presented at connection open. Authentication proper happens upstream;
// these checks only reject identifiers that could never be valid.
package tenant

import (
	"fmt"
	"regexp"

	"github.com/rzbill/pulse/internal/config"
)

// Rules validates tenant names against the configured pattern and optional
// allow-list.
type Rules struct {
	re      *regexp.Regexp
	allowed map[string]struct{}
}

// FromConfig compiles the rules from cfg. An empty regex accepts any
// non-empty name.
func FromConfig(cfg config.Config) (*Rules, error) {
	r := &Rules{}
	if cfg.TenantNameRegex != "" {
		re, err := regexp.Compile("^(?:" + cfg.TenantNameRegex + ")$")
		if err != nil {
			return nil, fmt.Errorf("tenant name regex: %w", err)
		}
		r.re = re
	}
	if len(cfg.AllowedTenants) > 0 {
		r.allowed = make(map[string]struct{}, len(cfg.AllowedTenants))
		for _, name := range cfg.AllowedTenants {
			r.allowed[name] = struct{}{}
		}
	}
	return r, nil
}

// Validate returns an error when name is empty, fails the pattern, or is not
// in the allow-list (when one is configured).
func (r *Rules) Validate(name string) error {
	if name == "" {
		return fmt.Errorf("tenant name is required")
	}
	if r.re != nil && !r.re.MatchString(name) {
		return fmt.Errorf("invalid tenant name %q", name)
	}
	if r.allowed != nil {
		if _, ok := r.allowed[name]; !ok {
			return fmt.Errorf("tenant %q is not allowed", name)
		}
	}
	return nil
}
