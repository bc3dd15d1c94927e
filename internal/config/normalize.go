package config

import (
	"regexp"
	"strings"
)

// DefaultAgentID is used when an agent name normalizes to nothing.
const DefaultAgentID = "default"

var (
	validIDRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
)

// NormalizeAgentID turns an agent name ("GUIAgent", "Code Agent") into the
// identity that keys its long-term notes: lowercase, [a-z0-9_-], at most 64 chars.
func NormalizeAgentID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return DefaultAgentID
	}
	if validIDRe.MatchString(lower) {
		return lower
	}

	id := strings.Trim(invalidChars.ReplaceAllString(lower, "-"), "-")
	if len(id) > 64 {
		id = strings.TrimRight(id[:64], "-")
	}
	if id == "" {
		return DefaultAgentID
	}
	return id
}
