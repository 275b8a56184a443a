package detect

import (
	"net/netip"
	"regexp"
	"strings"
)

const urlPlaceholder = "[redacted-url]"

var (
	ipURLPattern   = regexp.MustCompile(`(?i)\bhttps?://(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?(?:/[^\s]*)?`)
	dataURLPattern = regexp.MustCompile(`(?i)\bdata:[^,\s]{1,100},[^\s]+`)
	execURLPattern = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s]+?\.(?:exe|msi|bat|cmd|ps1|psm1|js|scr|vbs|jar|zip|tgz|tar\.gz|sh|dll)(?:[?#][^\s]*)?`)
	credURLPattern = regexp.MustCompile(`(?i)\bhttps?://[^/\s:@]+:[^@\s]+@[^\s]+`)
	anyURLPattern  = regexp.MustCompile(`(?i)\bhttps?://[^\s]+`)
	hostPattern    = regexp.MustCompile(`(?i)^https?://([^/]+)`)
	ipHostPattern  = regexp.MustCompile(`(?i)https?://((?:\d{1,3}\.){3}\d{1,3})`)
)

var shortenerDomains = map[string]struct{}{
	"bit.ly":      {},
	"goo.gl":      {},
	"tinyurl.com": {},
	"t.co":        {},
	"ow.ly":       {},
	"is.gd":       {},
	"cutt.ly":     {},
	"rb.gy":       {},
	"rebrand.ly":  {},
	"buff.ly":     {},
}

var suspiciousTLDs = []string{
	".zip", ".mov", ".country", ".support", ".top",
	".xyz", ".click", ".gq", ".work", ".kim",
}

const urlPreviewLimit = 48

// URLRisk scans for risky link constructs. Credential-bearing URLs and data
// URIs carry the block tier; shorteners, IP hosts, executable payload
// extensions and suspicious TLDs carry the delink tier. Policy maps tiers to
// actions.
func URLRisk(text string) []Finding {
	var findings []Finding

	for _, m := range dataURLPattern.FindAllStringIndex(text, -1) {
		findings = append(findings, urlFinding(text, m, "URL-DATA", "data_uri", TierBlock))
	}
	for _, m := range credURLPattern.FindAllStringIndex(text, -1) {
		findings = append(findings, urlFinding(text, m, "URL-CRED", "cred_in_url", TierBlock))
	}
	for _, m := range ipURLPattern.FindAllStringIndex(text, -1) {
		if !validIPHost(text[m[0]:m[1]]) {
			continue
		}
		findings = append(findings, urlFinding(text, m, "URL-IP", "ip_literal", TierDelink))
	}
	for _, m := range execURLPattern.FindAllStringIndex(text, -1) {
		findings = append(findings, urlFinding(text, m, "URL-EXE", "executable_ext", TierDelink))
	}

	for _, m := range anyURLPattern.FindAllStringIndex(text, -1) {
		url := text[m[0]:m[1]]
		host := hostname(url)
		if host == "" {
			continue
		}
		if _, ok := shortenerDomains[host]; ok {
			findings = append(findings, urlFinding(text, m, "URL-SHORTENER", "shortener", TierDelink))
		}
		for _, tld := range suspiciousTLDs {
			if strings.HasSuffix(host, tld) {
				findings = append(findings, urlFinding(text, m, "URL-TLD", "suspicious_tld", TierDelink))
				break
			}
		}
	}

	return findings
}

func urlFinding(text string, m []int, ruleID, kind, tier string) Finding {
	url := text[m[0]:m[1]]
	return Finding{
		RuleID:      ruleID,
		Family:      FamilyURL,
		Kind:        kind,
		Span:        Span{m[0], m[1]},
		SnippetHash: HashSnippet(url),
		Detail: Detail{
			Masked:      urlPlaceholder,
			Replacement: urlPlaceholder,
			Preview:     truncatePreview(url, urlPreviewLimit),
			Reason:      kind,
			Tier:        tier,
		},
	}
}

// validIPHost confirms the dotted quad in the URL parses as an IPv4 address,
// rejecting octets above 255 that the loose regex accepts.
func validIPHost(url string) bool {
	m := ipHostPattern.FindStringSubmatch(url)
	if m == nil {
		return false
	}
	addr, err := netip.ParseAddr(m[1])
	return err == nil && addr.Is4()
}

func hostname(url string) string {
	m := hostPattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	host := strings.ToLower(m[1])
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

func truncatePreview(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
