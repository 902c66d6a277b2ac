package cli

import "strings"

// MessageMaxLen bounds error and message cells in table output.
const MessageMaxLen = 60

// TruncateMessage collapses s onto one line and cuts it to maxLen runes,
// ending with "..." when shortened. maxLen is clamped to 4.
func TruncateMessage(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
