package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	return path
}

const validPolicy = `
policies:
  default:
    context:
      code_block_penalty: 5
      explain_only_penalty: 10
      link_bonus: 5
    allowlist:
      exact:
        - "noreply@example.com"
      regex:
        - '@example\.org$'
      tenants:
        acme:
          exact:
            - "10.0.0.1"
    rules:
      - id: PII-EMAIL
        type: pii
        kind: email
        action: mask
        severity: medium
        risk_weight: 10
      - id: SECRET-JWT
        type: secret
        kind: jwt
        action: block
        severity: critical
        risk_weight: 40
        safe_message_key: secret_leak
  strict:
    rules:
      - id: PII-EMAIL
        type: pii
        kind: email
        action: remove
        severity: high
        risk_weight: 20
`

func TestLoadValidDocument(t *testing.T) {
	policies, err := Load(writePolicy(t, validPolicy))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}

	def := policies["default"]
	if def == nil {
		t.Fatal("Default policy missing")
	}
	rule, ok := def.RuleFor("pii", "email")
	if !ok {
		t.Fatal("Email rule not indexed")
	}
	if rule.ID != "PII-EMAIL" || rule.Action != ActionMask || rule.RiskWeight != 10 {
		t.Errorf("Rule fields wrong: %+v", rule)
	}
	if def.Context.ExplainOnlyPenalty != 10 {
		t.Errorf("Context settings not loaded: %+v", def.Context)
	}
	if def.Context.AllowExplainOnlyBypass {
		t.Error("Bypass flag defaulted to on")
	}

	if !def.Allowlist.Allowed("noreply@example.com", "") {
		t.Error("Exact allowlist entry not matched")
	}
	if !def.Allowlist.Allowed("team@example.org", "") {
		t.Error("Regex allowlist entry not matched")
	}
	if def.Allowlist.Allowed("10.0.0.1", "") {
		t.Error("Tenant-scoped entry matched without tenant")
	}
	if !def.Allowlist.Allowed("10.0.0.1", "acme") {
		t.Error("Tenant-scoped entry not matched for its tenant")
	}
	if def.Allowlist.Allowed("10.0.0.1", "other") {
		t.Error("Tenant-scoped entry matched for the wrong tenant")
	}
}

func TestLoadSingleDocumentBecomesDefault(t *testing.T) {
	policies, err := Load(writePolicy(t, `
rules:
  - id: PII-EMAIL
    type: pii
    kind: email
    action: mask
    severity: low
    risk_weight: 5
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := policies[DefaultPolicyID]; !ok {
		t.Error("Top-level rules not registered as the default policy")
	}
}

func TestLoadRejectsMalformedDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"NoRules", "context:\n  link_bonus: 5\n"},
		{"MissingID", `
rules:
  - type: pii
    kind: email
    action: mask
    risk_weight: 5
`},
		{"UnknownAction", `
rules:
  - id: R1
    type: pii
    kind: email
    action: quarantine
    risk_weight: 5
`},
		{"UnknownSeverity", `
rules:
  - id: R1
    type: pii
    kind: email
    action: mask
    severity: extreme
    risk_weight: 5
`},
		{"UnknownKind", `
rules:
  - id: R1
    type: pii
    kind: passport
    action: mask
    risk_weight: 5
`},
		{"NegativeWeight", `
rules:
  - id: R1
    type: pii
    kind: email
    action: mask
    risk_weight: -1
`},
		{"BlockWithoutMessageKey", `
rules:
  - id: R1
    type: secret
    kind: jwt
    action: block
    severity: critical
    risk_weight: 40
`},
		{"DuplicateTypeKind", `
rules:
  - id: R1
    type: pii
    kind: email
    action: mask
    risk_weight: 5
  - id: R2
    type: pii
    kind: email
    action: remove
    risk_weight: 5
`},
		{"BadAllowlistRegex", `
allowlist:
  regex:
    - "(["
rules:
  - id: R1
    type: pii
    kind: email
    action: mask
    risk_weight: 5
`},
		{"NotYAML", "rules: [{{"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Load(writePolicy(t, c.doc)); err == nil {
				t.Error("Malformed document accepted")
			}
		})
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityCritical.Rank() > SeverityHigh.Rank() &&
		SeverityHigh.Rank() > SeverityMedium.Rank() &&
		SeverityMedium.Rank() > SeverityLow.Rank()) {
		t.Error("Severity ranks out of order")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("Unknown severity should rank zero")
	}
}
