package detect

import "regexp"

const cmdPlaceholder = "[command-blocked]"

const cmdPreviewLimit = 60

// Risky command constructs: remote-fetch-and-execute pipelines, encoded
// PowerShell, destructive filesystem and registry operations, and
// living-off-the-land binaries.
var commandScanners = []struct {
	kind    string
	ruleID  string
	pattern *regexp.Regexp
}{
	{"curl_pipe", "CMD-CURL", regexp.MustCompile(`(?i)\bcurl\s+[^\n|]+\|\s*(?:sh|bash)\b`)},
	{"wget_pipe", "CMD-WGET", regexp.MustCompile(`(?i)\bwget\s+[^\n|]+\|\s*(?:sh|bash)\b`)},
	{"powershell_encoded", "CMD-PS-ENC", regexp.MustCompile(`(?i)\bpowershell(?:\.exe)?\s+-enc(?:odedcommand)?\s+[A-Za-z0-9+/=]+`)},
	{"invoke_webrequest", "CMD-IWR", regexp.MustCompile(`(?i)\binvoke-webrequest\s+[^\n;]+(?:\|\s*iex|\|\s*invoke-expression)`)},
	{"rm_rf", "CMD-RMRF", regexp.MustCompile(`(?i)\brm\s+-rf\s+/\S*`)},
	{"reg_add", "CMD-REG", regexp.MustCompile(`(?i)\breg\s+add\s+[^\n]+`)},
	{"certutil", "CMD-CERTUTIL", regexp.MustCompile(`(?i)\bcertutil(?:\.exe)?\s+-urlcache(?:\s+-split)?\s+-f\s+\S+`)},
	{"mshta", "CMD-MSHTA", regexp.MustCompile(`(?i)\bmshta(?:\.exe)?\s+\S+`)},
	{"rundll32", "CMD-RUNDLL32", regexp.MustCompile(`(?i)\brundll32(?:\.exe)?\s+[^\s,]+,\S+`)},
}

// CommandRisk scans for command patterns that fetch and execute remote code
// or damage the host. Matches are replaced whole; the preview keeps a
// truncated prefix for operator triage.
func CommandRisk(text string) []Finding {
	var findings []Finding
	for _, sc := range commandScanners {
		for _, m := range sc.pattern.FindAllStringIndex(text, -1) {
			command := text[m[0]:m[1]]
			findings = append(findings, Finding{
				RuleID:      sc.ruleID,
				Family:      FamilyCommand,
				Kind:        sc.kind,
				Span:        Span{m[0], m[1]},
				SnippetHash: HashSnippet(command),
				Detail: Detail{
					Masked:      cmdPlaceholder,
					Replacement: cmdPlaceholder,
					Preview:     truncatePreview(command, cmdPreviewLimit),
					Reason:      sc.kind,
				},
			})
		}
	}
	return findings
}
