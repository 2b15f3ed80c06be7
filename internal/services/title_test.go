package services

import (
	"testing"

	"golang.org/x/text/language"
)

func TestGenerateTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"what is the refund policy", "What Refund Policy"},
		{"hi", ""},                    // stop words only
		{"   ", ""},                   // blank
		{"HELP with my order", "Help My Order"},
		{"one two three four five six seven eight", "One Two Three Four Five Six"}, // capped
	}
	for _, tc := range cases {
		if got := generateTitle(tc.in, 6, language.Und); got != tc.want {
			t.Fatalf("generateTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestShouldAutoTitle(t *testing.T) {
	if !shouldAutoTitle("New chat") || !shouldAutoTitle("") || !shouldAutoTitle("untitled") {
		t.Fatal("placeholder titles must be eligible")
	}
	if shouldAutoTitle("Refund Policy") {
		t.Fatal("real titles must not be overwritten")
	}
}
