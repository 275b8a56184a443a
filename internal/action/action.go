// Package action turns a policy decision into the final output text. A block
// discards the original entirely; anything else is span surgery over the
// normalized text.
package action

import (
	"fmt"
	"sort"

	"github.com/brnakin/llm-egress-guard/internal/policy"
)

const delinkToken = "[redacted-url]"

// Engine applies policy decisions to text.
type Engine struct {
	catalog *Catalog
}

// NewEngine creates an Engine backed by the given safe-message catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Apply produces the sanitized output. Blocked decisions return only the
// safe message; nothing of the original text survives. Otherwise every
// mask, delink, remove and annotate finding rewrites its span, applied
// back-to-front so earlier offsets stay valid while later ones change.
func (e *Engine) Apply(normalizedText string, decision policy.Decision) string {
	if decision.Blocked {
		return e.catalog.Render(decision.SafeMessageKey)
	}

	spans := resolveOverlaps(decision.Findings)
	if len(spans) == 0 {
		return normalizedText
	}

	// Back-to-front: descending start order.
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].start > spans[j].start
	})

	out := normalizedText
	for _, sp := range spans {
		out = out[:sp.start] + sp.replacement + out[sp.end:]
	}
	return out
}

type replacementSpan struct {
	start, end  int
	replacement string
}

// resolveOverlaps selects which findings get to rewrite their span. Higher
// severity wins an overlapping region; the remaining order keys make the
// selection deterministic and independent of input ordering.
func resolveOverlaps(findings []policy.AdjustedFinding) []replacementSpan {
	var candidates []policy.AdjustedFinding
	for _, f := range findings {
		switch f.Action {
		case policy.ActionMask, policy.ActionDelink, policy.ActionRemove, policy.ActionAnnotate:
			if f.Span.Start >= 0 && f.Span.End > f.Span.Start {
				candidates = append(candidates, f)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End > b.Span.End
		}
		return a.RuleID < b.RuleID
	})

	var accepted []replacementSpan
	overlaps := func(start, end int) bool {
		for _, sp := range accepted {
			if start < sp.end && end > sp.start {
				return true
			}
		}
		return false
	}
	for _, f := range candidates {
		if overlaps(f.Span.Start, f.Span.End) {
			continue
		}
		accepted = append(accepted, replacementSpan{
			start:       f.Span.Start,
			end:         f.Span.End,
			replacement: replacementFor(f),
		})
	}
	return accepted
}

func replacementFor(f policy.AdjustedFinding) string {
	switch f.Action {
	case policy.ActionMask:
		if f.Detail.Replacement != "" {
			return f.Detail.Replacement
		}
		if f.Detail.Masked != "" {
			return f.Detail.Masked
		}
		return "[REDACTED]"
	case policy.ActionDelink:
		return delinkToken
	case policy.ActionRemove:
		return ""
	case policy.ActionAnnotate:
		return fmt.Sprintf("[flagged:%s]", f.RuleID)
	}
	return ""
}
