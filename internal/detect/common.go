package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// HashSnippet fingerprints matched text for audit correlation without
// retaining it. The prefix makes the algorithm explicit in stored records.
func HashSnippet(matched string) string {
	sum := sha256.Sum256([]byte(matched))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// maskEmail keeps the first and last character of the local part plus the
// full domain, e.g. "john.smith@acme-corp.com" -> "j***h@acme-corp.com".
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + domain
}

// shannonEntropy computes bits of entropy per character over the byte
// distribution of s.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	total := float64(len(s))
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// luhnValid runs the Luhn checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
