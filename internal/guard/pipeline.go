// Package guard wires the inspection pipeline: normalize, segment, detect,
// decide, act. One Inspect call is a synchronous, stateless chain; the only
// shared state is the policy snapshot and message catalog, both hot-reloaded
// outside the request path.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/brnakin/llm-egress-guard/internal/action"
	"github.com/brnakin/llm-egress-guard/internal/detect"
	"github.com/brnakin/llm-egress-guard/internal/logger"
	"github.com/brnakin/llm-egress-guard/internal/normalize"
	"github.com/brnakin/llm-egress-guard/internal/policy"
	"github.com/brnakin/llm-egress-guard/internal/segment"
	"go.uber.org/zap"
)

// Result is the outcome of one inspection. Findings carry rule ids, hashes
// and masked details only; no raw matched text appears anywhere in a Result.
type Result struct {
	SanitizedText   string                   `json:"sanitized_text"`
	Blocked         bool                     `json:"blocked"`
	RiskScore       int                      `json:"risk_score"`
	Findings        []policy.AdjustedFinding `json:"findings"`
	Anomalies       []string                 `json:"anomalies,omitempty"`
	NormalizeSteps  []string                 `json:"normalize_steps,omitempty"`
	PolicyID        string                   `json:"policy_id"`
	DetectorMillis  map[string]float64       `json:"detector_millis,omitempty"`
	ShortCircuited  bool                     `json:"short_circuited,omitempty"`
	HasExplainOnly  bool                     `json:"has_explain_only,omitempty"`
	NormalizedBytes int                      `json:"normalized_bytes"`
}

// Anomaly tag recorded when evaluation is impossible and the request fails
// closed.
const anomalyPolicyUnavailable = "policy_unavailable"

// Guard runs the pipeline against the current policy snapshot.
type Guard struct {
	opts      normalize.Options
	segmenter *segment.Segmenter
	store     *policy.Store
	actions   *action.Engine
	logger    *logger.Logger
}

// New creates a Guard.
func New(opts normalize.Options, segmenter *segment.Segmenter, store *policy.Store, actions *action.Engine, log *logger.Logger) *Guard {
	return &Guard{
		opts:      opts,
		segmenter: segmenter,
		store:     store,
		actions:   actions,
		logger:    log.WithComponent("guard"),
	}
}

// Inspect runs one text through the pipeline. It only returns an error when
// no policy snapshot exists at all, and then the Result still carries a
// fail-closed block: content that cannot be evaluated does not pass.
func (g *Guard) Inspect(ctx context.Context, raw, policyID, tenantID string) (Result, error) {
	snapshot, err := g.store.Current()
	if err != nil {
		return Result{
			SanitizedText: action.FallbackMessage,
			Blocked:       true,
			RiskScore:     100,
			PolicyID:      policyID,
			Anomalies:     []string{anomalyPolicyUnavailable},
		}, fmt.Errorf("no policy snapshot: %w", err)
	}
	def, err := snapshot.Select(policyID)
	if err != nil {
		return Result{
			SanitizedText: action.FallbackMessage,
			Blocked:       true,
			RiskScore:     100,
			PolicyID:      policyID,
			Anomalies:     []string{anomalyPolicyUnavailable},
		}, fmt.Errorf("selecting policy: %w", err)
	}

	normalized := normalize.Normalize(raw, g.opts)
	parsed := g.segmenter.Parse(ctx, normalized.Text)

	result := Result{
		PolicyID:        def.PolicyID,
		Anomalies:       normalized.Anomalies,
		NormalizeSteps:  normalized.Steps,
		DetectorMillis:  make(map[string]float64),
		HasExplainOnly:  parsed.HasExplainOnly(),
		NormalizedBytes: len(normalized.Text),
	}

	var findings []detect.Finding
	blockConfirmed := false
	for _, family := range detect.Families() {
		if blockConfirmed {
			result.ShortCircuited = true
			break
		}
		familyFindings, millis, panicked := g.runFamily(family, normalized.Text)
		result.DetectorMillis[string(family.Family)] = millis
		if panicked {
			result.Anomalies = append(result.Anomalies, "detector_"+string(family.Family)+"_failed")
			continue
		}
		detect.Annotate(familyFindings, parsed)
		findings = append(findings, familyFindings...)
		if policy.ConfirmsBlock(def, familyFindings, parsed, tenantID) {
			blockConfirmed = true
		}
	}

	decision := policy.Evaluate(def, findings, parsed, tenantID)
	result.Blocked = decision.Blocked
	result.RiskScore = decision.RiskScore
	result.Findings = decision.Findings
	result.SanitizedText = g.actions.Apply(normalized.Text, decision)

	return result, nil
}

// runFamily executes one detector family, recovering panics so a single bad
// pattern interaction degrades that family instead of failing the request.
func (g *Guard) runFamily(family detect.NamedDetector, text string) (findings []detect.Finding, millis float64, panicked bool) {
	start := time.Now()
	defer func() {
		millis = float64(time.Since(start).Microseconds()) / 1000.0
		if r := recover(); r != nil {
			panicked = true
			findings = nil
			g.logger.Error("Detector family panicked",
				zap.String("family", string(family.Family)),
				zap.Any("panic", r))
		}
	}()
	findings = family.Scan(text)
	return findings, 0, false
}
