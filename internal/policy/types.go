package policy

import (
	"regexp"

	"github.com/brnakin/llm-egress-guard/internal/detect"
)

// Action is what the action engine does with a finding's span.
type Action string

const (
	ActionMask     Action = "mask"
	ActionDelink   Action = "delink"
	ActionRemove   Action = "remove"
	ActionBlock    Action = "block"
	ActionAnnotate Action = "annotate"
)

var knownActions = map[Action]struct{}{
	ActionMask:     {},
	ActionDelink:   {},
	ActionRemove:   {},
	ActionBlock:    {},
	ActionAnnotate: {},
}

// Severity orders rules for overlap resolution and safe-message selection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric order of a severity; unknown severities rank
// lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Rule binds one detector (type, kind) to an action, weight and message key.
// MinWeight is the floor the context adjustments cannot push the weight
// below; zero keeps the plain floor-at-zero behavior.
type Rule struct {
	ID             string        `yaml:"id"`
	Type           detect.Family `yaml:"type"`
	Kind           string        `yaml:"kind"`
	Action         Action        `yaml:"action"`
	Severity       Severity      `yaml:"severity"`
	RiskWeight     int           `yaml:"risk_weight"`
	MinWeight      int           `yaml:"min_weight"`
	SafeMessageKey string        `yaml:"safe_message_key"`
}

// ContextSettings tune how segment context shifts rule weights. The bypass
// flag is the only way an explain-only finding can escape a block rule and
// it defaults to off.
type ContextSettings struct {
	CodeBlockPenalty       int  `yaml:"code_block_penalty"`
	ExplainOnlyPenalty     int  `yaml:"explain_only_penalty"`
	LinkBonus              int  `yaml:"link_bonus"`
	AllowExplainOnlyBypass bool `yaml:"allow_explain_only_bypass"`
}

// AllowlistSpec is the declarative allowlist shape in the policy document.
type AllowlistSpec struct {
	Exact   []string                 `yaml:"exact"`
	Regex   []string                 `yaml:"regex"`
	Tenants map[string]AllowlistSpec `yaml:"tenants"`
}

// Allowlist is the compiled form.
type Allowlist struct {
	exact   map[string]struct{}
	regex   []*regexp.Regexp
	tenants map[string]*Allowlist
}

// Allowed reports whether a matched value is allowlisted globally or for the
// given tenant.
func (a *Allowlist) Allowed(value, tenant string) bool {
	if a == nil {
		return false
	}
	if _, ok := a.exact[value]; ok {
		return true
	}
	for _, re := range a.regex {
		if re.MatchString(value) {
			return true
		}
	}
	if tenant != "" {
		if scoped, ok := a.tenants[tenant]; ok && scoped.Allowed(value, "") {
			return true
		}
	}
	return false
}

type ruleKey struct {
	family detect.Family
	kind   string
}

// Definition is one compiled policy: its rules indexed by (type, kind), its
// allowlist and its context settings.
type Definition struct {
	PolicyID  string
	Rules     []Rule
	Allowlist *Allowlist
	Context   ContextSettings

	byTypeKind map[ruleKey]*Rule
}

// RuleFor returns the rule matching a finding's family and kind. Findings
// with no rule are informational only.
func (d *Definition) RuleFor(family detect.Family, kind string) (*Rule, bool) {
	r, ok := d.byTypeKind[ruleKey{family, kind}]
	return r, ok
}

// AdjustedFinding is a finding annotated with the rule that matched and the
// context-adjusted weight that entered the risk score.
type AdjustedFinding struct {
	detect.Finding
	RuleID   string   `json:"applied_rule_id"`
	Action   Action   `json:"action"`
	Severity Severity `json:"severity"`
	Weight   int      `json:"weight"`
}

// Decision is the outcome of one policy evaluation. Computed fresh per
// request, never cached.
type Decision struct {
	RiskScore      int               `json:"risk_score"`
	Blocked        bool              `json:"blocked"`
	SafeMessageKey string            `json:"safe_message_key,omitempty"`
	Findings       []AdjustedFinding `json:"findings"`
}
