package action

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brnakin/llm-egress-guard/internal/detect"
	"github.com/brnakin/llm-egress-guard/internal/policy"
)

const testMessages = `
safe_messages:
  blocked:
    title: "Content blocked"
    description: "Policy violation."
  secret_leak:
    title: "Credential detected"
    description: "A credential was found."
`

func writeMessages(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write messages file: %v", err)
	}
	return path
}

func adjusted(ruleID string, action policy.Action, severity policy.Severity, start, end int, replacement string) policy.AdjustedFinding {
	return policy.AdjustedFinding{
		Finding: detect.Finding{
			RuleID: ruleID,
			Span:   detect.Span{Start: start, End: end},
			Detail: detect.Detail{Replacement: replacement},
		},
		RuleID:   ruleID,
		Action:   action,
		Severity: severity,
	}
}

func TestApplyBlocked(t *testing.T) {
	engine := NewEngine(NewCatalog(writeMessages(t, testMessages)))

	out := engine.Apply("text with eyJhbGciOi... inside", policy.Decision{
		Blocked:        true,
		SafeMessageKey: "secret_leak",
	})
	if out != "Credential detected: A credential was found." {
		t.Errorf("Unexpected safe message %q", out)
	}
	if strings.Contains(out, "eyJ") {
		t.Error("Blocked output leaked original content")
	}
}

func TestApplyBlockedFallbacks(t *testing.T) {
	t.Run("UnknownKeyUsesBlockedEntry", func(t *testing.T) {
		engine := NewEngine(NewCatalog(writeMessages(t, testMessages)))
		out := engine.Apply("secret", policy.Decision{Blocked: true, SafeMessageKey: "nope"})
		if out != "Content blocked: Policy violation." {
			t.Errorf("Unexpected fallback %q", out)
		}
	})

	t.Run("MissingCatalogUsesConstant", func(t *testing.T) {
		engine := NewEngine(NewCatalog(filepath.Join(t.TempDir(), "missing.yaml")))
		out := engine.Apply("secret", policy.Decision{Blocked: true, SafeMessageKey: "secret_leak"})
		if out != FallbackMessage {
			t.Errorf("Unexpected fallback %q", out)
		}
	})
}

func TestApplySpanSurgery(t *testing.T) {
	engine := NewEngine(NewCatalog(writeMessages(t, testMessages)))
	//            0123456789012345678901234567890
	text := "mail bob@x.io and eve@y.io bye"

	decision := policy.Decision{
		Findings: []policy.AdjustedFinding{
			adjusted("PII-EMAIL", policy.ActionMask, policy.SeverityMedium, 5, 13, "b***b@x.io"),
			adjusted("PII-EMAIL", policy.ActionMask, policy.SeverityMedium, 18, 26, "e***e@y.io"),
		},
	}

	out := engine.Apply(text, decision)
	want := "mail b***b@x.io and e***e@y.io bye"
	if out != want {
		t.Errorf("Expected %q, got %q", want, out)
	}

	// Same decision, reversed finding order: output must be byte-identical.
	decision.Findings[0], decision.Findings[1] = decision.Findings[1], decision.Findings[0]
	if again := engine.Apply(text, decision); again != out {
		t.Errorf("Output depends on finding order: %q vs %q", out, again)
	}
}

func TestApplyActions(t *testing.T) {
	engine := NewEngine(NewCatalog(writeMessages(t, testMessages)))
	text := "aaa URL bbb"

	t.Run("Delink", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("URL-SHORTENER", policy.ActionDelink, policy.SeverityLow, 4, 7, ""),
		}})
		if out != "aaa [redacted-url] bbb" {
			t.Errorf("Unexpected delink output %q", out)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("X", policy.ActionRemove, policy.SeverityLow, 4, 8, ""),
		}})
		if out != "aaa bbb" {
			t.Errorf("Unexpected remove output %q", out)
		}
	})

	t.Run("Annotate", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("CMD-REG", policy.ActionAnnotate, policy.SeverityMedium, 4, 7, ""),
		}})
		if out != "aaa [flagged:CMD-REG] bbb" {
			t.Errorf("Unexpected annotate output %q", out)
		}
	})

	t.Run("MaskWithoutReplacementUsesRedacted", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("X", policy.ActionMask, policy.SeverityLow, 4, 7, ""),
		}})
		if out != "aaa [REDACTED] bbb" {
			t.Errorf("Unexpected mask output %q", out)
		}
	})
}

func TestApplyOverlapResolution(t *testing.T) {
	engine := NewEngine(NewCatalog(writeMessages(t, testMessages)))
	text := "0123456789"

	t.Run("HigherSeverityWins", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("LOW", policy.ActionMask, policy.SeverityLow, 2, 8, "[low]"),
			adjusted("CRIT", policy.ActionMask, policy.SeverityCritical, 4, 6, "[crit]"),
		}})
		if out != "0123[crit]6789" {
			t.Errorf("Lower severity rewrote an overlapped span: %q", out)
		}
	})

	t.Run("NonOverlappingBothApply", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("A", policy.ActionMask, policy.SeverityLow, 0, 2, "[a]"),
			adjusted("B", policy.ActionMask, policy.SeverityLow, 8, 10, "[b]"),
		}})
		if out != "[a]234567[b]" {
			t.Errorf("Disjoint spans not both rewritten: %q", out)
		}
	})

	t.Run("TieBrokenByRuleID", func(t *testing.T) {
		out := engine.Apply(text, policy.Decision{Findings: []policy.AdjustedFinding{
			adjusted("B-RULE", policy.ActionMask, policy.SeverityLow, 2, 6, "[b]"),
			adjusted("A-RULE", policy.ActionMask, policy.SeverityLow, 2, 6, "[a]"),
		}})
		if out != "01[a]6789" {
			t.Errorf("Deterministic tie-break failed: %q", out)
		}
	})
}

func TestCatalogReloadOnChange(t *testing.T) {
	path := writeMessages(t, testMessages)
	catalog := NewCatalog(path)

	if got := catalog.Render("secret_leak"); got != "Credential detected: A credential was found." {
		t.Fatalf("Initial render wrong: %q", got)
	}

	updated := strings.Replace(testMessages, "A credential was found.", "Rotated.", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("Failed to update messages: %v", err)
	}
	stamp := time.Now().Add(time.Second)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("Failed to bump mtime: %v", err)
	}

	if got := catalog.Render("secret_leak"); got != "Credential detected: Rotated." {
		t.Errorf("Catalog did not reload: %q", got)
	}
}
