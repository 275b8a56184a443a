package detect

import "regexp"

var (
	base64BlobPattern = regexp.MustCompile(`(?:[A-Za-z0-9+/]{80}\s*){10,}`)
	hexBlobPattern    = regexp.MustCompile(`(?:[0-9A-Fa-f]{64}\s*){10,}`)
)

// Thresholds for encoded payloads after whitespace removal. Hex needs no
// entropy check; its alphabet already bounds entropy at 4 bits.
const (
	minBase64Len     = 800
	minBase64Entropy = 4.5
	minHexLen        = 640
)

// Exfil scans for bulk encoded payloads: long base64 or hex runs that look
// like file contents being smuggled out in text. Short encoded values such
// as tokens and hashes stay below the length floors.
func Exfil(text string) []Finding {
	var findings []Finding

	for _, m := range base64BlobPattern.FindAllStringIndex(text, -1) {
		blob := text[m[0]:m[1]]
		compact := whitespace.ReplaceAllString(blob, "")
		if len(compact) < minBase64Len || shannonEntropy(compact) < minBase64Entropy {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      "EXFIL-B64",
			Family:      FamilyExfil,
			Kind:        "large_base64",
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(blob),
			Detail: Detail{
				Masked:      "[base64-blob]",
				Replacement: "[base64-blob]",
				Preview:     "[truncated-blob]",
				Length:      len(compact),
			},
		})
	}

	for _, m := range hexBlobPattern.FindAllStringIndex(text, -1) {
		blob := text[m[0]:m[1]]
		compact := whitespace.ReplaceAllString(blob, "")
		if len(compact) < minHexLen {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      "EXFIL-HEX",
			Family:      FamilyExfil,
			Kind:        "large_hex",
			Span:        Span{m[0], m[1]},
			SnippetHash: HashSnippet(blob),
			Detail: Detail{
				Masked:      "[hex-blob]",
				Replacement: "[hex-blob]",
				Preview:     "[truncated-blob]",
				Length:      len(compact),
			},
		})
	}

	return findings
}
