package ai

import "regexp"

// MaxDetailLen bounds the size of any error text that leaves the safety
// layer for logs or escalation records.
const MaxDetailLen = 500

// Redaction patterns, applied in order: channel ids and long digit runs
// before the loose phone pattern so the latter cannot partially match them.
var (
	channelIDRE = regexp.MustCompile(`(?i)\bwhatsapp:\+?\d{2,15}\b`)
	emailRE     = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	ccRE        = regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)
	ssnRE       = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	// Matches E.164 and common national formats: "+1 212-555-1212",
	// "(212) 555-1212", "2125551212".
	phoneRE = regexp.MustCompile(`\+?\d{1,3}[ .\-]?\(?\d{2,4}\)?[ .\-]?\d{3,4}[ .\-]?\d{2,4}`)
)

// Redact scrubs PII from error text before it is logged or escalated:
// channel ids, emails, credit-card-like digit runs, SSN-like patterns, and
// phone numbers in several formats.
func Redact(s string) string {
	if s == "" {
		return s
	}
	out := channelIDRE.ReplaceAllString(s, "[REDACTED:channel]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	out = ccRE.ReplaceAllString(out, "[REDACTED:card]")
	out = ssnRE.ReplaceAllString(out, "[REDACTED:ssn]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	return out
}

// Truncate caps s at MaxDetailLen bytes, marking the cut.
func Truncate(s string) string {
	if len(s) <= MaxDetailLen {
		return s
	}
	return s[:MaxDetailLen-3] + "..."
}

// sanitize is the combined scrub applied to every detail string leaving
// this layer.
func sanitize(s string) string {
	return Truncate(Redact(s))
}
