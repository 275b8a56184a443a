package normalize

import (
	"strings"
	"testing"
	"time"
)

func hasStep(result Result, step string) bool {
	for _, s := range result.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func hasAnomaly(result Result, anomaly string) bool {
	for _, a := range result.Anomalies {
		if a == anomaly {
			return true
		}
	}
	return false
}

func TestNormalize(t *testing.T) {
	opts := DefaultOptions()

	t.Run("PlainTextUnchanged", func(t *testing.T) {
		result := Normalize("just a plain sentence", opts)
		if result.Text != "just a plain sentence" {
			t.Errorf("Plain text mutated: %q", result.Text)
		}
		if len(result.Steps) != 0 {
			t.Errorf("Unexpected steps recorded: %v", result.Steps)
		}
		if len(result.Anomalies) != 0 {
			t.Errorf("Unexpected anomalies: %v", result.Anomalies)
		}
	})

	t.Run("PercentDecode", func(t *testing.T) {
		result := Normalize("hello%20world", opts)
		if result.Text != "hello world" {
			t.Errorf("Expected %q, got %q", "hello world", result.Text)
		}
		if !hasStep(result, "url_decode") {
			t.Errorf("url_decode step not recorded: %v", result.Steps)
		}
	})

	t.Run("NestedPercentDecodeHitsPassLimit", func(t *testing.T) {
		// %2520 -> %20 -> space, consuming both passes.
		result := Normalize("a%2520b", opts)
		if result.Text != "a b" {
			t.Errorf("Expected %q, got %q", "a b", result.Text)
		}
		if !hasAnomaly(result, "url_decode_max_passes_reached") {
			t.Errorf("Pass-limit anomaly missing: %v", result.Anomalies)
		}
	})

	t.Run("InvalidPercentSequenceKept", func(t *testing.T) {
		result := Normalize("100% sure", opts)
		if result.Text != "100% sure" {
			t.Errorf("Invalid escape mutated: %q", result.Text)
		}
	})

	t.Run("HTMLEntityDecode", func(t *testing.T) {
		result := Normalize("&lt;script&gt;", opts)
		if result.Text != "<script>" {
			t.Errorf("Expected %q, got %q", "<script>", result.Text)
		}
		if !hasStep(result, "html_unescape") {
			t.Errorf("html_unescape step not recorded: %v", result.Steps)
		}
		if result.EntityCount != 2 {
			t.Errorf("Expected 2 entities counted, got %d", result.EntityCount)
		}
	})

	t.Run("EntityCountGateKeepsInput", func(t *testing.T) {
		input := "&lt; &gt; &amp;"
		result := Normalize(input, Options{MaxEntities: 2, TimeBudget: time.Second})
		if result.Text != input {
			t.Errorf("Gated decode still mutated text: %q", result.Text)
		}
		if !hasAnomaly(result, "entity_count_exceeded") {
			t.Errorf("entity_count_exceeded missing: %v", result.Anomalies)
		}
	})

	t.Run("OutputLengthGateKeepsInput", func(t *testing.T) {
		// Two entities pass the count gate, but the decoded output exceeds
		// 2*MaxEntities bytes.
		input := "&amp;&lt; " + strings.Repeat("x", 20)
		result := Normalize(input, Options{MaxEntities: 2, TimeBudget: time.Second})
		if result.Text != input {
			t.Errorf("Gated decode still mutated text: %q", result.Text)
		}
		if !hasAnomaly(result, "output_length_exceeded") {
			t.Errorf("output_length_exceeded missing: %v", result.Anomalies)
		}
	})

	t.Run("DoubleEncodingDetected", func(t *testing.T) {
		// &amp;lt; decodes to &lt; which is itself still an entity.
		result := Normalize("&amp;lt; &lt;", opts)
		if !hasAnomaly(result, "double_encoding_detected") {
			t.Errorf("double_encoding_detected missing: %v", result.Anomalies)
		}
	})

	t.Run("NFKCFoldsFullwidth", func(t *testing.T) {
		result := Normalize("ｅｘａｍｐｌｅ．ｃｏｍ", opts)
		if result.Text != "example.com" {
			t.Errorf("Expected %q, got %q", "example.com", result.Text)
		}
		if !hasStep(result, "nfkc") {
			t.Errorf("nfkc step not recorded: %v", result.Steps)
		}
	})

	t.Run("ObfuscationExpansion", func(t *testing.T) {
		result := Normalize("contact j[at]example[dot]com or j(AT)example(DOT)org", opts)
		if !strings.Contains(result.Text, "j@example.com") {
			t.Errorf("Bracketed obfuscation not expanded: %q", result.Text)
		}
		if !strings.Contains(result.Text, "j@example.org") {
			t.Errorf("Parenthesized obfuscation not expanded: %q", result.Text)
		}
		if !hasStep(result, "expand_obfuscation") {
			t.Errorf("expand_obfuscation step not recorded: %v", result.Steps)
		}
	})

	t.Run("ZeroWidthStripped", func(t *testing.T) {
		result := Normalize("se\u200bcr\u200det\ufeff", opts)
		if result.Text != "secret" {
			t.Errorf("Expected %q, got %q", "secret", result.Text)
		}
		if !hasStep(result, "strip_zero_width") {
			t.Errorf("strip_zero_width step not recorded: %v", result.Steps)
		}
	})

	t.Run("ControlStrippedNewlinesKept", func(t *testing.T) {
		result := Normalize("a\x00b\tc\nd", opts)
		if result.Text != "ab\tc\nd" {
			t.Errorf("Expected %q, got %q", "ab\tc\nd", result.Text)
		}
		if !hasStep(result, "strip_control") {
			t.Errorf("strip_control step not recorded: %v", result.Steps)
		}
	})

	t.Run("CRLFNormalized", func(t *testing.T) {
		result := Normalize("line one\r\nline two", opts)
		if result.Text != "line one\nline two" {
			t.Errorf("Expected LF-only text, got %q", result.Text)
		}
		if !hasStep(result, "normalize_newlines") {
			t.Errorf("normalize_newlines step not recorded: %v", result.Steps)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		inputs := []string{
			"hello%20world",
			"j[at]example[dot]com",
			"se\u200bcret &lt;tag&gt;",
			"ｅｘａｍｐｌｅ",
			"plain text stays plain",
		}
		for _, input := range inputs {
			once := Normalize(input, opts)
			twice := Normalize(once.Text, opts)
			if twice.Text != once.Text {
				t.Errorf("Not idempotent for %q: %q -> %q", input, once.Text, twice.Text)
			}
		}
	})

	t.Run("ZeroOptionsUseDefaults", func(t *testing.T) {
		result := Normalize("&lt;ok&gt;", Options{})
		if result.Text != "<ok>" {
			t.Errorf("Defaults not applied: %q", result.Text)
		}
	})
}
