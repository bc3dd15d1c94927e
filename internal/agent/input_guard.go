package agent

import (
	"errors"
	"log/slog"
	"regexp"
)

// ErrInjectionBlocked is returned by Inspect in "block" mode.
var ErrInjectionBlocked = errors.New("possible prompt injection")

// Guard actions.
const (
	GuardLog   = "log"
	GuardWarn  = "warn"
	GuardBlock = "block"
	GuardOff   = "off"
)

type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

// InputGuard scans task text and tool output for prompt injection patterns.
// Tool output matters here: executed code and web pages the code fetched can
// carry instructions aimed at the model.
type InputGuard struct {
	patterns []guardPattern
	action   string
}

// NewInputGuard returns a guard for action, or nil when action is "off".
// Unknown actions fall back to "warn".
func NewInputGuard(action string) *InputGuard {
	switch action {
	case GuardOff:
		return nil
	case GuardLog, GuardWarn, GuardBlock:
	default:
		action = GuardWarn
	}
	return &InputGuard{patterns: defaultGuardPatterns(), action: action}
}

// Scan returns the names of the matched patterns.
func (g *InputGuard) Scan(text string) []string {
	if g == nil || text == "" {
		return nil
	}
	var matches []string
	for _, gp := range g.patterns {
		if gp.pattern.MatchString(text) {
			matches = append(matches, gp.name)
		}
	}
	return matches
}

// Inspect scans text from source and logs matches at the guard's level.
// In block mode a match returns ErrInjectionBlocked. A nil guard accepts everything.
func (g *InputGuard) Inspect(source, text string) error {
	matches := g.Scan(text)
	if len(matches) == 0 {
		return nil
	}
	switch g.action {
	case GuardLog:
		slog.Info("agent: injection pattern", "source", source, "patterns", matches)
	case GuardBlock:
		slog.Warn("agent: injection blocked", "source", source, "patterns", matches)
		return ErrInjectionBlocked
	default:
		slog.Warn("agent: injection pattern", "source", source, "patterns", matches)
	}
	return nil
}

// Action reports the configured action.
func (g *InputGuard) Action() string {
	if g == nil {
		return GuardOff
	}
	return g.action
}

func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?|guidelines?)`),
		},
		{
			name:    "ignore_instructions_zh",
			pattern: regexp.MustCompile(`忽略(之前|以上|上面|前面)的?(所有)?(指令|指示|规则|提示)`),
		},
		{
			name:    "role_override",
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are|act as if you are)\s+`),
		},
		{
			name:    "system_tags",
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "fake_breaker",
			pattern: regexp.MustCompile(`(?i)print\s+["']?the task is (done|impossible)`),
		},
		{
			name:    "null_bytes",
			pattern: regexp.MustCompile(`\x00`),
		},
	}
}
