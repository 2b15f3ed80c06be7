package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// default titles we consider placeholder and eligible for auto-generation
const (
	defaultTitleNew      = "New chat"
	defaultTitleUntitled = "Untitled"
)

// shouldAutoTitle reports whether the current title is a placeholder.
func shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitle derives a concise title from the first inbound text: stop
// words dropped, remaining words title-cased, capped at maxWords.
func generateTitle(text string, maxWords int, locale language.Tag) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	toks := titleWordRE.FindAllString(strings.ToLower(text), -1)
	if len(toks) == 0 {
		return ""
	}
	if maxWords <= 0 {
		maxWords = 6
	}
	if locale == language.Und {
		locale = language.English
	}

	titleCaser := cases.Title(locale)
	out := make([]string, 0, maxWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= maxWords {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, " ")
}

// Extract Unicode letters with optional trailing numbers (e.g., "order66").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"hi": {}, "hello": {}, "hey": {}, "please": {},
}
