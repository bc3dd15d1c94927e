package tools

import (
	"regexp"
	"strings"
)

// Credential patterns scrubbed from tool output before it reaches the LLM.
var credentialPatterns = []*regexp.Regexp{
	// OpenAI-style keys
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`),
	// AWS
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	// PEM private keys
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
	// Generic key=value patterns (case-insensitive)
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns and every literal in
// secrets with [REDACTED].
func ScrubCredentials(text string, secrets ...string) string {
	if text == "" {
		return text
	}
	for _, s := range secrets {
		text = strings.ReplaceAll(text, s, redactedPlaceholder)
	}
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// minSecretLen keeps short literals from redacting ordinary words.
const minSecretLen = 8
