package detect

import (
	"strings"
	"testing"
)

func findingsOfKind(findings []Finding, kind string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestPIIEmail(t *testing.T) {
	text := "Contact john.smith@acme-corp.com today"
	findings := findingsOfKind(PII(text), "email")
	if len(findings) != 1 {
		t.Fatalf("Expected 1 email finding, got %d", len(findings))
	}
	f := findings[0]
	if f.RuleID != "PII-EMAIL" {
		t.Errorf("Unexpected rule id %q", f.RuleID)
	}
	if f.Detail.Masked != "j***h@acme-corp.com" {
		t.Errorf("Unexpected mask %q", f.Detail.Masked)
	}
	if text[f.Span.Start:f.Span.End] != "john.smith@acme-corp.com" {
		t.Errorf("Span does not cover the address: %q", text[f.Span.Start:f.Span.End])
	}
	if !strings.HasPrefix(f.SnippetHash, "sha256:") {
		t.Errorf("Snippet hash missing algorithm prefix: %q", f.SnippetHash)
	}
}

func TestPIIPhoneLocalePrecedence(t *testing.T) {
	findings := findingsOfKind(PII("call 0532 123 45 67 now"), "phone_tr")
	if len(findings) != 1 {
		t.Fatalf("Expected 1 phone_tr finding, got %d", len(findings))
	}
	f := findings[0]
	if f.RuleID != "PII-PHONE-TR" {
		t.Errorf("Unexpected rule id %q", f.RuleID)
	}
	if !strings.HasPrefix(f.Detail.Masked, "***") {
		t.Errorf("Phone mask leaks more than the tail: %q", f.Detail.Masked)
	}

	// The generic pattern must not double-report the claimed span.
	all := PII("call 0532 123 45 67 now")
	count := 0
	for _, f := range all {
		if f.Family == FamilyPII && strings.HasPrefix(f.Kind, "phone") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Phone span reported %d times, want 1", count)
	}
}

func TestPIIPhoneDigitBounds(t *testing.T) {
	// Too few digits after stripping separators.
	if got := findingsOfKind(PII("code 12 34 56"), "phone"); len(got) != 0 {
		t.Errorf("Short digit run reported as phone: %+v", got)
	}
}

func TestPIIIBAN(t *testing.T) {
	t.Run("Turkish", func(t *testing.T) {
		findings := findingsOfKind(PII("pay to TR33 0006 1005 1978 6457 8413 26 please"), "iban_tr")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 iban_tr finding, got %d", len(findings))
		}
		if findings[0].Detail.Masked != "TR****************1326" {
			t.Errorf("Unexpected mask %q", findings[0].Detail.Masked)
		}
	})

	t.Run("German", func(t *testing.T) {
		findings := findingsOfKind(PII("pay to DE89 3704 0044 0532 0130 00 please"), "iban_de")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 iban_de finding, got %d", len(findings))
		}
		if findings[0].Detail.Masked != "DE****************3000" {
			t.Errorf("Unexpected mask %q", findings[0].Detail.Masked)
		}
	})

	t.Run("WrongLengthRejected", func(t *testing.T) {
		if got := findingsOfKind(PII("TR33 0006 1005 1978 6457 84"), "iban_tr"); len(got) != 0 {
			t.Errorf("Truncated IBAN reported: %+v", got)
		}
	})
}

func TestPIITCKN(t *testing.T) {
	t.Run("ValidChecksum", func(t *testing.T) {
		findings := findingsOfKind(PII("id 10000000146 on file"), "tckn")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 tckn finding, got %d", len(findings))
		}
		if findings[0].Detail.Masked != "********146" {
			t.Errorf("Unexpected mask %q", findings[0].Detail.Masked)
		}
	})

	t.Run("InvalidChecksumRejected", func(t *testing.T) {
		if got := findingsOfKind(PII("id 12345678901 on file"), "tckn"); len(got) != 0 {
			t.Errorf("Checksum-failing number reported: %+v", got)
		}
	})

	t.Run("LeadingZeroRejected", func(t *testing.T) {
		if validTCKN("01000000146") {
			t.Error("Leading-zero identifier accepted")
		}
	})
}

func TestPIIPAN(t *testing.T) {
	t.Run("LuhnValid", func(t *testing.T) {
		findings := findingsOfKind(PII("card 4111111111111111 exp 12/27"), "pan")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 pan finding, got %d", len(findings))
		}
		if findings[0].Detail.Masked != "**** **** **** 1111" {
			t.Errorf("Unexpected mask %q", findings[0].Detail.Masked)
		}
	})

	t.Run("LuhnInvalidRejected", func(t *testing.T) {
		if got := findingsOfKind(PII("card 4111111111111112"), "pan"); len(got) != 0 {
			t.Errorf("Luhn-failing number reported: %+v", got)
		}
	})
}

func TestPIIIPv4(t *testing.T) {
	findings := findingsOfKind(PII("server at 10.0.0.5 responded"), "ipv4")
	if len(findings) != 1 {
		t.Fatalf("Expected 1 ipv4 finding, got %d", len(findings))
	}
	if findings[0].Detail.Replacement != "[ip-redacted]" {
		t.Errorf("Unexpected replacement %q", findings[0].Detail.Replacement)
	}

	if got := findingsOfKind(PII("version 300.400.500.600"), "ipv4"); len(got) != 0 {
		t.Errorf("Out-of-range octets reported: %+v", got)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"john.smith@acme-corp.com", "j***h@acme-corp.com"},
		{"ab@x.io", "**@x.io"},
		{"a@x.io", "*@x.io"},
		{"not-an-email", "***"},
	}
	for _, c := range cases {
		if got := maskEmail(c.in); got != c.want {
			t.Errorf("maskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLuhn(t *testing.T) {
	if !luhnValid("4111111111111111") {
		t.Error("Known-good number rejected")
	}
	if luhnValid("4111111111111112") {
		t.Error("Known-bad number accepted")
	}
	if luhnValid("4111a11111111111") {
		t.Error("Non-digit input accepted")
	}
}

func TestPIINoRawRetention(t *testing.T) {
	ip := "203.120.110.150"
	findings := findingsOfKind(PII("beacon to "+ip+" every hour"), "ipv4")
	if len(findings) != 1 {
		t.Fatalf("Expected 1 ipv4 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Detail.Preview != ipPlaceholder {
		t.Errorf("Preview carries %q instead of the placeholder", f.Detail.Preview)
	}
	for _, field := range []string{f.Detail.Masked, f.Detail.Replacement, f.Detail.Preview, f.Detail.Reason, f.Detail.Pattern} {
		if strings.Contains(field, ip) {
			t.Errorf("Raw address retained in detail field %q", field)
		}
	}
	if strings.Contains(f.SnippetHash, ip) {
		t.Error("Raw address retained in snippet hash")
	}
}
