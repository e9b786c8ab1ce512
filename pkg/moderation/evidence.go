package moderation

import (
	"regexp"
	"strings"
)

// HasEvidence reports whether m carries a link or at least one attachment.
func HasEvidence(m Message) bool {
	if m == nil {
		return false
	}
	if len(m.Attachments()) > 0 {
		return true
	}
	return TextHasLink(m.Content())
}

// TextHasLink reports whether text contains an http:// or https:// substring.
func TextHasLink(text string) bool {
	return strings.Contains(text, "http://") || strings.Contains(text, "https://")
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>]+`)

// MaxEvidenceLinks caps how many links are copied into the audit record.
const MaxEvidenceLinks = 5

// ExtractLinks returns up to limit distinct http(s) URLs in order of appearance.
func ExtractLinks(text string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range linkPattern.FindAllString(text, -1) {
		l = strings.TrimRight(l, ").,!?>")
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
