package policy

import (
	"github.com/brnakin/llm-egress-guard/internal/detect"
	"github.com/brnakin/llm-egress-guard/internal/segment"
)

// Evaluate renders a decision over the findings of one request.
//
// Per finding: allowlisted values are skipped entirely; findings with no
// matching rule are informational only; otherwise the rule's weight is
// adjusted for segment context and accumulated into the risk score, capped
// at 100. A block rule forces blocked=true unless the finding is
// explain-only and the bypass flag is on. The bypass defaults to off and
// context adjustments alone can never cancel a block.
func Evaluate(def *Definition, findings []detect.Finding, parsed *segment.ParsedContent, tenant string) Decision {
	decision := Decision{}

	var blockingRule *Rule
	for i := range findings {
		finding := &findings[i]
		if allowlisted(def, finding, parsed, tenant) {
			continue
		}
		rule, ok := def.RuleFor(finding.Family, finding.Kind)
		if !ok {
			continue
		}

		weight := adjustedWeight(rule, finding, def.Context)
		decision.RiskScore += weight
		decision.Findings = append(decision.Findings, AdjustedFinding{
			Finding:  *finding,
			RuleID:   rule.ID,
			Action:   rule.Action,
			Severity: rule.Severity,
			Weight:   weight,
		})

		if rule.Action == ActionBlock && !bypassed(finding, def.Context) {
			decision.Blocked = true
			if blockingRule == nil || rule.Severity.Rank() > blockingRule.Severity.Rank() {
				blockingRule = rule
			}
		}
	}

	if decision.RiskScore > 100 {
		decision.RiskScore = 100
	}
	if blockingRule != nil {
		decision.SafeMessageKey = blockingRule.SafeMessageKey
	}
	return decision
}

// ConfirmsBlock reports whether any of the findings forces a non-bypassable
// block under this policy. Used to short-circuit remaining detector families
// once the outcome cannot change.
func ConfirmsBlock(def *Definition, findings []detect.Finding, parsed *segment.ParsedContent, tenant string) bool {
	for i := range findings {
		finding := &findings[i]
		if allowlisted(def, finding, parsed, tenant) {
			continue
		}
		rule, ok := def.RuleFor(finding.Family, finding.Kind)
		if !ok || rule.Action != ActionBlock {
			continue
		}
		if !bypassed(finding, def.Context) {
			return true
		}
	}
	return false
}

// allowlisted re-derives the matched value from the span to test it against
// the allowlist. The value stays on the stack; findings never carry it.
func allowlisted(def *Definition, finding *detect.Finding, parsed *segment.ParsedContent, tenant string) bool {
	if def.Allowlist == nil || parsed == nil {
		return false
	}
	start, end := finding.Span.Start, finding.Span.End
	if start < 0 || end > len(parsed.Text) || start >= end {
		return false
	}
	return def.Allowlist.Allowed(parsed.Text[start:end], tenant)
}

func adjustedWeight(rule *Rule, finding *detect.Finding, ctx ContextSettings) int {
	weight := rule.RiskWeight
	if finding.Context == segment.KindCode {
		weight -= ctx.CodeBlockPenalty
	}
	if finding.ExplainOnly && finding.Family == detect.FamilyCommand {
		weight -= ctx.ExplainOnlyPenalty
	}
	if finding.Context == segment.KindLink {
		weight += ctx.LinkBonus
	}
	floor := rule.MinWeight
	if weight < floor {
		weight = floor
	}
	if weight < 0 {
		weight = 0
	}
	return weight
}

func bypassed(finding *detect.Finding, ctx ContextSettings) bool {
	return finding.ExplainOnly && ctx.AllowExplainOnlyBypass
}
