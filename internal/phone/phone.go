// Package phone canonicalizes phone numbers between plain E.164 form and the
// channel-specific wire format ("whatsapp:+15551234567"). Both directions are
// idempotent: wrapping an already-wrapped number or stripping a bare one is
// a no-op.
package phone

import (
	"fmt"
	"regexp"
	"strings"
)

// ChannelPrefix is the scheme wrapper the provider expects on WhatsApp
// endpoints.
const ChannelPrefix = "whatsapp:"

// e164RE matches "+" followed by 2–15 digits with no leading zero.
var e164RE = regexp.MustCompile(`^\+[1-9][0-9]{1,14}$`)

// IsE164 reports whether s is a valid E.164 number (after stripping any
// channel prefix and surrounding whitespace).
func IsE164(s string) bool {
	return e164RE.MatchString(Normalize(s))
}

// Normalize strips the channel prefix and surrounding whitespace, returning
// the bare number. It does not validate; pair with IsE164 where the format
// must hold.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(s, ChannelPrefix)
}

// Format wraps a number in the channel scheme. Already-wrapped input is
// returned unchanged, so Format(Format(n)) == Format(n).
func Format(s string) string {
	n := Normalize(s)
	if n == "" {
		return ""
	}
	return ChannelPrefix + n
}

// ValidateE164 returns a descriptive error when s is not a valid E.164
// number. Used by the delivery client to fail fast before any network call.
func ValidateE164(s string) error {
	if n := Normalize(s); !e164RE.MatchString(n) {
		return fmt.Errorf("invalid E.164 number %q", s)
	}
	return nil
}
