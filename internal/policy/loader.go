package policy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/brnakin/llm-egress-guard/internal/detect"
	"gopkg.in/yaml.v3"
)

// DefaultPolicyID is the policy used when a request names none, and the
// fallback when it names an unknown one.
const DefaultPolicyID = "default"

type policyDoc struct {
	Allowlist AllowlistSpec   `yaml:"allowlist"`
	Context   ContextSettings `yaml:"context"`
	Rules     []Rule          `yaml:"rules"`
}

type documentDoc struct {
	Policies map[string]policyDoc `yaml:"policies"`

	// Single-policy documents put the fields at the top level.
	Allowlist AllowlistSpec   `yaml:"allowlist"`
	Context   ContextSettings `yaml:"context"`
	Rules     []Rule          `yaml:"rules"`
}

// Load parses and validates a policy document. Any malformed rule, unknown
// action, unknown (type, kind) pair or bad allowlist regex rejects the whole
// document; partial enforcement is worse than keeping the previous
// configuration.
func Load(path string) (map[string]*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var doc documentDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}

	sources := doc.Policies
	if len(sources) == 0 {
		if len(doc.Rules) == 0 {
			return nil, fmt.Errorf("policy file %s defines no rules", path)
		}
		sources = map[string]policyDoc{
			DefaultPolicyID: {Allowlist: doc.Allowlist, Context: doc.Context, Rules: doc.Rules},
		}
	}

	definitions := make(map[string]*Definition, len(sources))
	for id, src := range sources {
		def, err := compile(id, src)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", id, err)
		}
		definitions[id] = def
	}
	return definitions, nil
}

func compile(id string, src policyDoc) (*Definition, error) {
	def := &Definition{
		PolicyID:   id,
		Rules:      src.Rules,
		Context:    src.Context,
		byTypeKind: make(map[ruleKey]*Rule, len(src.Rules)),
	}

	for i := range def.Rules {
		rule := &def.Rules[i]
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d has no id", i)
		}
		if _, ok := knownActions[rule.Action]; !ok {
			return nil, fmt.Errorf("rule %s: unknown action %q", rule.ID, rule.Action)
		}
		if rule.Severity != "" && rule.Severity.Rank() == 0 {
			return nil, fmt.Errorf("rule %s: unknown severity %q", rule.ID, rule.Severity)
		}
		if rule.RiskWeight < 0 {
			return nil, fmt.Errorf("rule %s: negative risk_weight", rule.ID)
		}
		if rule.MinWeight < 0 {
			return nil, fmt.Errorf("rule %s: negative min_weight", rule.ID)
		}
		if !detect.IsKnownKind(rule.Type, rule.Kind) {
			return nil, fmt.Errorf("rule %s: no detector emits (%s, %s)", rule.ID, rule.Type, rule.Kind)
		}
		if rule.Action == ActionBlock && rule.SafeMessageKey == "" {
			return nil, fmt.Errorf("rule %s: block action requires safe_message_key", rule.ID)
		}
		key := ruleKey{rule.Type, rule.Kind}
		if prev, dup := def.byTypeKind[key]; dup {
			return nil, fmt.Errorf("rules %s and %s both match (%s, %s)", prev.ID, rule.ID, rule.Type, rule.Kind)
		}
		def.byTypeKind[key] = rule
	}

	allowlist, err := compileAllowlist(src.Allowlist)
	if err != nil {
		return nil, err
	}
	def.Allowlist = allowlist
	return def, nil
}

func compileAllowlist(spec AllowlistSpec) (*Allowlist, error) {
	a := &Allowlist{exact: make(map[string]struct{}, len(spec.Exact))}
	for _, v := range spec.Exact {
		a.exact[v] = struct{}{}
	}
	for _, pattern := range spec.Regex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("allowlist regex %q: %w", pattern, err)
		}
		a.regex = append(a.regex, re)
	}
	if len(spec.Tenants) > 0 {
		a.tenants = make(map[string]*Allowlist, len(spec.Tenants))
		for tenant, scoped := range spec.Tenants {
			compiled, err := compileAllowlist(scoped)
			if err != nil {
				return nil, fmt.Errorf("tenant %q: %w", tenant, err)
			}
			a.tenants[tenant] = compiled
		}
	}
	return a, nil
}
