package verification

import (
	"fmt"
	"sort"
	"strings"

	"identity-service/internal/auth"
)

// Predicate decides whether a provider assertion carries a verified email.
type Predicate func(a auth.Assertion) bool

// Policy maps provider names to exactly one verification predicate.
// Adding a provider means registering its predicate here; there is no
// implicit fallback.
type Policy struct {
	rules map[string]Predicate
}

// NewPolicy builds a policy from an explicit rule table.
func NewPolicy(rules map[string]Predicate) *Policy {
	m := make(map[string]Predicate, len(rules))
	for name, p := range rules {
		m[name] = p
	}
	return &Policy{rules: m}
}

// DefaultPolicy registers the rules for the providers this service ships with.
func DefaultPolicy() *Policy {
	return NewPolicy(map[string]Predicate{
		"github":   GitHubVerified,
		"google":   EmailVerifiedClaim,
		"keycloak": EmailVerifiedClaim,
	})
}

// GitHubVerified trusts either the normalized profile flag or the raw one.
func GitHubVerified(a auth.Assertion) bool {
	return a.InfoFlag("verified") || a.ExtraFlag("verified")
}

// EmailVerifiedClaim trusts the OIDC email_verified claim.
func EmailVerifiedClaim(a auth.Assertion) bool {
	return a.ExtraFlag("email_verified")
}

// Register adds a rule for a provider. A provider can only be registered once.
func (p *Policy) Register(provider string, predicate Predicate) error {
	if strings.TrimSpace(provider) == "" || predicate == nil {
		return fmt.Errorf("verification: provider name and predicate are required")
	}
	if _, exists := p.rules[provider]; exists {
		return fmt.Errorf("verification: provider %q already registered", provider)
	}
	p.rules[provider] = predicate
	return nil
}

// Verified evaluates the provider's rule against the assertion.
func (p *Policy) Verified(a auth.Assertion) (bool, error) {
	rule, ok := p.rules[a.Provider]
	if !ok {
		return false, &auth.UnsupportedProviderError{Provider: a.Provider}
	}
	return rule(a), nil
}

// Require fails when any enabled provider has no rule. Call it at startup so
// a missing rule is found before the first login, not during it.
func (p *Policy) Require(enabled []string) error {
	var missing []string
	for _, name := range enabled {
		if _, ok := p.rules[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("verification: no rule for enabled providers: %s", strings.Join(missing, ", "))
}

// Providers lists the registered provider names in sorted order.
func (p *Policy) Providers() []string {
	names := make([]string, 0, len(p.rules))
	for name := range p.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
