// Package ai wraps the external text-generation capability with the safety
// behavior the channel requires: bounded timeouts, bounded retries, output
// validation, failure classification, canned fallbacks, and redacted
// escalation records. Callers of the safety layer never see an error; they
// always get something sendable.
package ai

import "context"

// Turn is one prior utterance handed to the generator as context.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Generator is the text-generation port. Implementations are expected to
// honor ctx cancellation; everything else (validation, fallbacks, retries)
// is the safety layer's job.
type Generator interface {
	Generate(ctx context.Context, history []Turn, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, history []Turn, prompt string) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, history []Turn, prompt string) (string, error) {
	return f(ctx, history, prompt)
}
