package executor

import "regexp"

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07`)

// StripANSI removes terminal color and control sequences.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
