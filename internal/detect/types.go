package detect

import "github.com/brnakin/llm-egress-guard/internal/segment"

// Family identifies a detector family. The set is closed; policy rules are
// validated against it at load time.
type Family string

const (
	FamilyPII     Family = "pii"
	FamilySecret  Family = "secret"
	FamilyURL     Family = "url"
	FamilyCommand Family = "cmd"
	FamilyExfil   Family = "exfil"
)

// Span is a byte range into the normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Risk tiers assigned by the URL detector and consumed by policy.
const (
	TierBlock  = "block"
	TierDelink = "delink"
)

// Detail carries the structured, non-sensitive payload of a finding. The
// replacement is what the action engine substitutes for the span; previews
// are placeholders or masked values, never the raw match.
type Detail struct {
	Masked      string  `json:"masked,omitempty"`
	Replacement string  `json:"replacement,omitempty"`
	Preview     string  `json:"preview,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Tier        string  `json:"tier,omitempty"`
	Entropy     float64 `json:"entropy,omitempty"`
	Length      int     `json:"length,omitempty"`
	Pattern     string  `json:"pattern,omitempty"`
}

// Finding is a single detector match. Findings are immutable once produced;
// policy evaluation reads but never rewrites them. Raw matched text is never
// stored; SnippetHash is the only link back to the match.
type Finding struct {
	RuleID      string       `json:"rule_id"`
	Family      Family       `json:"family"`
	Kind        string       `json:"kind"`
	Span        Span         `json:"span"`
	SnippetHash string       `json:"snippet_hash"`
	Detail      Detail       `json:"detail"`
	Context     segment.Kind `json:"context"`
	ExplainOnly bool         `json:"explain_only"`
}

// Func is a pure detector over the normalized text. Detectors are
// independent, callable in any order, and safe to run in parallel.
type Func func(text string) []Finding

// NamedDetector pairs a family with its scan function.
type NamedDetector struct {
	Family Family
	Scan   Func
}

// Families returns the detector registry in canonical execution order.
func Families() []NamedDetector {
	return []NamedDetector{
		{FamilyPII, PII},
		{FamilyExfil, Exfil},
		{FamilySecret, Secrets},
		{FamilyURL, URLRisk},
		{FamilyCommand, CommandRisk},
	}
}

// KnownKinds lists every (family, kind) combination the detectors can emit.
// Policy loading rejects rules outside this table.
var KnownKinds = map[Family][]string{
	FamilyPII:     {"email", "phone", "phone_tr", "phone_us", "phone_de", "iban_tr", "iban_de", "tckn", "pan", "ipv4"},
	FamilySecret:  {"jwt", "aws_access_key", "aws_secret_key", "openai_api_key", "github_token", "slack_token", "stripe_key", "twilio_key", "azure_sas", "gcp_service_account", "pem_private_key", "high_entropy"},
	FamilyURL:     {"data_uri", "cred_in_url", "ip_literal", "shortener", "executable_ext", "suspicious_tld"},
	FamilyCommand: {"curl_pipe", "wget_pipe", "powershell_encoded", "invoke_webrequest", "rm_rf", "reg_add", "certutil", "mshta", "rundll32"},
	FamilyExfil:   {"large_base64", "large_hex"},
}

// IsKnownKind reports whether a (family, kind) pair can ever be produced.
func IsKnownKind(family Family, kind string) bool {
	for _, k := range KnownKinds[family] {
		if k == kind {
			return true
		}
	}
	return false
}

// Annotate copies segment context onto each finding. The explain-only flag
// only carries over for code segments.
func Annotate(findings []Finding, parsed *segment.ParsedContent) {
	for i := range findings {
		kind, explainOnly := parsed.ContextFor(findings[i].Span.Start, findings[i].Span.End)
		findings[i].Context = kind
		findings[i].ExplainOnly = kind == segment.KindCode && explainOnly
	}
}
