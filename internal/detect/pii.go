package detect

import (
	"regexp"
	"strings"
)

// Placeholders substituted for matched spans. Raw values never appear in
// findings or sanitized output.
const (
	maskPlaceholder = "[REDACTED]"
	ipPlaceholder   = "[ip-redacted]"
)

var (
	emailPattern  = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	ibanTRPattern = regexp.MustCompile(`(?i)\bTR\d{2}(?:\s*\d{4}){5}\s*\d{2}\b`)
	ibanDEPattern = regexp.MustCompile(`(?i)\bDE\d{2}(?:\s*\d{4}){4}\s*\d{2}\b`)
	tcknPattern   = regexp.MustCompile(`\b\d{11}\b`)
	panPattern    = regexp.MustCompile(`\b(?:4\d{12}(?:\d{3})?|5[1-5]\d{14}|3[47]\d{13}|6(?:011|5\d{2})\d{12})\b`)
	ipv4Pattern   = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`)
	nonDigit      = regexp.MustCompile(`\D`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Locale-specific phone patterns. The generic pattern catches grouped
// international numbers the locale patterns miss.
var phonePatterns = []struct {
	kind    string
	ruleID  string
	pattern *regexp.Regexp
}{
	{"phone_tr", "PII-PHONE-TR", regexp.MustCompile(`\b(?:\+?90|0)?\s?(?:5\d{2}|[2348]\d{2})[\s-]?\d{3}[\s-]?\d{2}[\s-]?\d{2}\b`)},
	{"phone_us", "PII-PHONE-US", regexp.MustCompile(`\b(?:\+?1|\+?44)?[-.\s]?(?:\(\d{3}\)|\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"phone_de", "PII-PHONE-DE", regexp.MustCompile(`\b(?:\+?49)?[\s-]?(?:\(0\))?(?:1\d{2}|[2-9]\d{1,3})[\s-]?\d{3,8}\b`)},
	{"phone", "PII-PHONE", regexp.MustCompile(`\b(?:\+?\d{1,3}[\s\-.]?)?(?:\(?\d{2,4}\)?[\s\-.]?){2,3}\d{2,4}\b`)},
}

// PII scans for personal data: e-mail addresses, phone numbers, IBANs,
// Turkish national identifiers, payment card numbers and IPv4 literals.
// Checksummed formats (TCKN, PAN) are validated before reporting.
func PII(text string) []Finding {
	var findings []Finding
	findings = append(findings, scanEmails(text)...)
	findings = append(findings, scanPhones(text)...)
	findings = append(findings, scanIBAN(text, ibanTRPattern, "TR", "iban_tr", "PII-IBAN-TR", 26)...)
	findings = append(findings, scanIBAN(text, ibanDEPattern, "DE", "iban_de", "PII-IBAN-DE", 22)...)
	findings = append(findings, scanTCKN(text)...)
	findings = append(findings, scanPAN(text)...)
	findings = append(findings, scanIPv4(text)...)
	return findings
}

func scanEmails(text string) []Finding {
	var findings []Finding
	for _, m := range emailPattern.FindAllStringIndex(text, -1) {
		value := text[m[0]:m[1]]
		masked := maskEmail(value)
		findings = append(findings, Finding{
			RuleID:      "PII-EMAIL",
			Family:      FamilyPII,
			Kind:        "email",
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(value),
			Detail:      Detail{Masked: masked, Replacement: masked, Preview: masked},
		})
	}
	return findings
}

func scanPhones(text string) []Finding {
	var findings []Finding
	// Later patterns skip ranges an earlier pattern already claimed, so a
	// number is reported once under its most specific locale.
	var claimed [][2]int
	overlaps := func(start, end int) bool {
		for _, c := range claimed {
			if start < c[1] && end > c[0] {
				return true
			}
		}
		return false
	}
	for _, entry := range phonePatterns {
		for _, m := range entry.pattern.FindAllStringIndex(text, -1) {
			raw := text[m[0]:m[1]]
			digits := nonDigit.ReplaceAllString(raw, "")
			if len(digits) < 9 || len(digits) > 15 {
				continue
			}
			if overlaps(m[0], m[1]) {
				continue
			}
			claimed = append(claimed, [2]int{m[0], m[1]})
			masked := "***" + digits[len(digits)-2:]
			findings = append(findings, Finding{
				RuleID:      entry.ruleID,
				Family:      FamilyPII,
				Kind:        entry.kind,
				Span:        Span{m[0], m[1]},
				SnippetHash: HashSnippet(raw),
				Detail:      Detail{Masked: masked, Replacement: masked, Preview: masked, Pattern: entry.kind},
			})
		}
	}
	return findings
}

func scanIBAN(text string, pattern *regexp.Regexp, country, kind, ruleID string, wantLen int) []Finding {
	var findings []Finding
	for _, m := range pattern.FindAllStringIndex(text, -1) {
		raw := text[m[0]:m[1]]
		normalized := strings.ToUpper(whitespace.ReplaceAllString(raw, ""))
		if len(normalized) != wantLen || !strings.HasPrefix(normalized, country) {
			continue
		}
		masked := country + "****************" + normalized[len(normalized)-4:]
		findings = append(findings, Finding{
			RuleID:      ruleID,
			Family:      FamilyPII,
			Kind:        kind,
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(raw),
			Detail:      Detail{Masked: masked, Replacement: masked, Preview: masked},
		})
	}
	return findings
}

func scanTCKN(text string) []Finding {
	var findings []Finding
	for _, m := range tcknPattern.FindAllStringIndex(text, -1) {
		candidate := text[m[0]:m[1]]
		if !validTCKN(candidate) {
			continue
		}
		masked := "********" + candidate[len(candidate)-3:]
		findings = append(findings, Finding{
			RuleID:      "PII-TCKN",
			Family:      FamilyPII,
			Kind:        "tckn",
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(candidate),
			Detail:      Detail{Masked: masked, Replacement: masked, Preview: masked},
		})
	}
	return findings
}

func scanPAN(text string) []Finding {
	var findings []Finding
	for _, m := range panPattern.FindAllStringIndex(text, -1) {
		candidate := text[m[0]:m[1]]
		if !luhnValid(candidate) {
			continue
		}
		masked := "**** **** **** " + candidate[len(candidate)-4:]
		findings = append(findings, Finding{
			RuleID:      "PII-PAN",
			Family:      FamilyPII,
			Kind:        "pan",
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(candidate),
			Detail:      Detail{Masked: masked, Replacement: masked, Preview: masked},
		})
	}
	return findings
}

func scanIPv4(text string) []Finding {
	var findings []Finding
	for _, m := range ipv4Pattern.FindAllStringIndex(text, -1) {
		ip := text[m[0]:m[1]]
		findings = append(findings, Finding{
			RuleID:      "PII-IP",
			Family:      FamilyPII,
			Kind:        "ipv4",
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(ip),
			Detail:      Detail{Masked: ipPlaceholder, Replacement: ipPlaceholder, Preview: ipPlaceholder},
		})
	}
	return findings
}

// validTCKN runs the two-digit checksum of the Turkish national identifier.
// The tenth digit is derived from the first nine, the eleventh from the
// first ten.
func validTCKN(value string) bool {
	if len(value) != 11 || value[0] == '0' {
		return false
	}
	var digits [11]int
	for i := 0; i < 11; i++ {
		c := value[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}
	oddSum := digits[0] + digits[2] + digits[4] + digits[6] + digits[8]
	evenSum := digits[1] + digits[3] + digits[5] + digits[7]
	tenth := ((oddSum*7-evenSum)%10 + 10) % 10
	if digits[9] != tenth {
		return false
	}
	total := 0
	for i := 0; i < 10; i++ {
		total += digits[i]
	}
	return digits[10] == total%10
}
