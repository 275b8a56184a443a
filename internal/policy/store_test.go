package policy

import (
	"os"
	"testing"
	"time"

	"github.com/brnakin/llm-egress-guard/internal/logger"
)

const storePolicyV1 = `
rules:
  - id: PII-EMAIL
    type: pii
    kind: email
    action: mask
    severity: medium
    risk_weight: 10
`

const storePolicyV2 = `
rules:
  - id: PII-EMAIL
    type: pii
    kind: email
    action: remove
    severity: medium
    risk_weight: 20
`

// rewrite replaces the file content and pushes the mtime forward so the
// store's stat gate sees a change regardless of filesystem timestamp
// granularity.
func rewrite(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to rewrite policy: %v", err)
	}
	stamp := time.Now().Add(offset)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("Failed to bump mtime: %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	path := writePolicy(t, storePolicyV1)

	store, err := NewStore(path, logger.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	snap, err := store.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	def, err := snap.Select("")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	rule, _ := def.RuleFor("pii", "email")
	if rule == nil || rule.Action != ActionMask {
		t.Fatalf("Initial policy not served: %+v", rule)
	}

	t.Run("ReloadOnChange", func(t *testing.T) {
		rewrite(t, path, storePolicyV2, time.Second)
		snap, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed after rewrite: %v", err)
		}
		def, _ := snap.Select("")
		rule, _ := def.RuleFor("pii", "email")
		if rule == nil || rule.Action != ActionRemove {
			t.Errorf("Updated policy not picked up: %+v", rule)
		}
	})

	t.Run("LastGoodKeptOnBadReload", func(t *testing.T) {
		rewrite(t, path, "rules: [{{", 2*time.Second)
		snap, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed with last good available: %v", err)
		}
		def, _ := snap.Select("")
		rule, _ := def.RuleFor("pii", "email")
		if rule == nil || rule.Action != ActionRemove {
			t.Errorf("Last good snapshot not retained: %+v", rule)
		}
	})

	t.Run("RecoversAfterFix", func(t *testing.T) {
		rewrite(t, path, storePolicyV1, 3*time.Second)
		snap, err := store.Current()
		if err != nil {
			t.Fatalf("Current failed after fix: %v", err)
		}
		def, _ := snap.Select("")
		rule, _ := def.RuleFor("pii", "email")
		if rule == nil || rule.Action != ActionMask {
			t.Errorf("Fixed policy not picked up: %+v", rule)
		}
	})
}

func TestStoreInitialLoadMustSucceed(t *testing.T) {
	path := writePolicy(t, "rules: [{{")
	if _, err := NewStore(path, logger.NewNop()); err == nil {
		t.Error("Store accepted an unparseable initial policy")
	}
}

func TestSnapshotSelect(t *testing.T) {
	path := writePolicy(t, validPolicy)
	store, err := NewStore(path, logger.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	snap, err := store.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}

	def, err := snap.Select("strict")
	if err != nil || def.PolicyID != "strict" {
		t.Errorf("Named policy not selected: %v %+v", err, def)
	}
	def, err = snap.Select("nonexistent")
	if err != nil || def.PolicyID != DefaultPolicyID {
		t.Errorf("Unknown policy did not fall back to default: %v %+v", err, def)
	}
	def, err = snap.Select("")
	if err != nil || def.PolicyID != DefaultPolicyID {
		t.Errorf("Empty policy id did not select default: %v %+v", err, def)
	}
}
