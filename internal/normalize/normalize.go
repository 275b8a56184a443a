// Package normalize canonicalizes untrusted text before detection. Each step
// can re-expose obfuscation hidden by the previous one, so the order is
// fixed: percent-decode, HTML entity decode, NFKC, obfuscation expansion,
// zero-width strip, control-character strip. The function never fails; it
// returns best-effort output plus anomaly tags.
package normalize

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxDecodePasses = 2

// Named and numeric HTML entities, for the cheap pre-count that gates the
// decode step.
var entityPattern = regexp.MustCompile(`&(?:[a-zA-Z]+|#x?[0-9a-fA-F]+);`)

// Obfuscated separators spelled out to dodge e-mail and URL detectors.
var (
	obfuscatedAt  = regexp.MustCompile(`(?i)(?:\[at\]|\(at\)|\{at\})`)
	obfuscatedDot = regexp.MustCompile(`(?i)(?:\[dot\]|\(dot\)|\{dot\})`)
)

// Zero-width and directionality characters plus the byte-order mark.
var zeroWidthChars = map[rune]struct{}{
	'\u200b': {}, // zero width space
	'\u200c': {}, // zero width non-joiner
	'\u200d': {}, // zero width joiner
	'\u200e': {}, // left-to-right mark
	'\u200f': {}, // right-to-left mark
	'\u2060': {}, // word joiner
	'\ufeff': {}, // byte-order mark
}

// Normalize canonicalizes raw text for the downstream detectors.
func Normalize(raw string, opts Options) Result {
	if opts.MaxEntities <= 0 {
		opts.MaxEntities = DefaultOptions().MaxEntities
	}
	if opts.TimeBudget <= 0 {
		opts.TimeBudget = DefaultOptions().TimeBudget
	}

	deadline := time.Now().Add(opts.TimeBudget)
	result := Result{Text: raw}

	expired := func(step string) bool {
		if time.Now().After(deadline) {
			result.Anomalies = append(result.Anomalies, "time_budget_exceeded_at_"+step)
			return true
		}
		return false
	}

	// Step 1: percent decode, bounded passes against nested encoding.
	decoded, mutated, exhausted := percentDecode(result.Text)
	if mutated {
		result.Text = decoded
		result.Steps = append(result.Steps, "url_decode")
	}
	if exhausted {
		result.Anomalies = append(result.Anomalies, "url_decode_max_passes_reached")
	}

	// Step 2: HTML entity decode, gated by entity count and output length.
	if expired("html_unescape") {
		return finish(&result, deadline)
	}
	result.Text = decodeEntities(&result, opts.MaxEntities)

	// Step 3: Unicode NFKC folds homoglyph and formatting variants.
	if expired("nfkc") {
		return finish(&result, deadline)
	}
	if folded := norm.NFKC.String(result.Text); folded != result.Text {
		result.Text = folded
		result.Steps = append(result.Steps, "nfkc")
	}

	// Step 4: expand bracketed obfuscations like "j[at]example[dot]com".
	if expired("expand_obfuscation") {
		return finish(&result, deadline)
	}
	expanded := obfuscatedDot.ReplaceAllString(obfuscatedAt.ReplaceAllString(result.Text, "@"), ".")
	if expanded != result.Text {
		result.Text = expanded
		result.Steps = append(result.Steps, "expand_obfuscation")
	}

	// Step 5: strip zero-width characters and BOMs.
	if expired("strip_zero_width") {
		return finish(&result, deadline)
	}
	if stripped, mutated := stripZeroWidth(result.Text); mutated {
		result.Text = stripped
		result.Steps = append(result.Steps, "strip_zero_width")
	}

	// Step 6: strip control characters except \n, \r, \t.
	if expired("strip_control") {
		return finish(&result, deadline)
	}
	if stripped, mutated := stripControl(result.Text); mutated {
		result.Text = stripped
		result.Steps = append(result.Steps, "strip_control")
	}

	if strings.Contains(result.Text, "\r\n") {
		result.Text = strings.ReplaceAll(result.Text, "\r\n", "\n")
		result.Steps = append(result.Steps, "normalize_newlines")
	}

	return finish(&result, deadline)
}

func finish(result *Result, deadline time.Time) Result {
	if over := time.Since(deadline); over > 0 {
		result.Anomalies = append(result.Anomalies,
			fmt.Sprintf("total_time_exceeded_by_%dms", over.Milliseconds()))
	}
	return *result
}

// decodeEntities runs the gated HTML entity decode and records anomalies on
// the result. The pre-decode text is kept whenever a limit trips.
func decodeEntities(result *Result, maxEntities int) string {
	value := result.Text
	entityCount := len(entityPattern.FindAllStringIndex(value, -1))
	result.EntityCount = entityCount
	if entityCount == 0 {
		return value
	}

	if entityCount > maxEntities {
		result.Anomalies = append(result.Anomalies, "entity_count_exceeded")
		return value
	}

	unescaped := html.UnescapeString(value)
	if len(unescaped) > 2*maxEntities {
		result.Anomalies = append(result.Anomalies, "output_length_exceeded")
		return value
	}

	if unescaped != value {
		result.Steps = append(result.Steps, "html_unescape")
		// Entities surviving a decode pass signal layered encoding.
		if remaining := len(entityPattern.FindAllStringIndex(unescaped, -1)); remaining > 0 && remaining < entityCount {
			result.Anomalies = append(result.Anomalies, "double_encoding_detected")
		}
	}
	return unescaped
}

// percentDecode decodes %XX escapes leniently: invalid sequences are kept
// verbatim instead of failing the whole step. Returns the decoded text,
// whether anything changed, and whether the pass limit was reached while
// encodings were still being unwound.
func percentDecode(value string) (string, bool, bool) {
	original := value
	passes := 0
	for passes < maxDecodePasses {
		decoded := percentDecodeOnce(value)
		if decoded == value {
			break
		}
		value = decoded
		passes++
	}
	return value, value != original, passes >= maxDecodePasses
}

func percentDecodeOnce(value string) string {
	if !strings.Contains(value, "%") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); {
		if value[i] == '%' && i+2 < len(value) {
			hi, okHi := unhex(value[i+1])
			lo, okLo := unhex(value[i+2])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
		i++
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func stripZeroWidth(value string) (string, bool) {
	mutated := false
	stripped := strings.Map(func(r rune) rune {
		if _, ok := zeroWidthChars[r]; ok {
			mutated = true
			return -1
		}
		return r
	}, value)
	return stripped, mutated
}

func stripControl(value string) (string, bool) {
	mutated := false
	stripped := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			mutated = true
			return -1
		}
		return r
	}, value)
	return stripped, mutated
}
