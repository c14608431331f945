package core

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Redacted replaces identifiers masked out of guest-visible replies.
const Redacted = "[REDACTED]"

var (
	patientCodePattern = regexp.MustCompile(`CGH-\d{5}`)
	phonePattern       = regexp.MustCompile(`\b\d{10}\b`)
)

// RedactForGuest masks patient codes and 10-digit phone numbers. Applying it
// twice yields the same text as applying it once.
func RedactForGuest(reply string) string {
	reply = patientCodePattern.ReplaceAllString(reply, Redacted)
	return phonePattern.ReplaceAllString(reply, Redacted)
}

var voiceRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.+?)\*`), "$1"},
	{regexp.MustCompile("`(.+?)`"), "$1"},
	{regexp.MustCompile(`(?m)^#{1,3}\s+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*[-*][ \t]+`), "• "},
	{regexp.MustCompile(`\|`), ", "},
	{regexp.MustCompile(`-{3,}`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// CleanForVoice strips markdown so text-to-speech reads the reply naturally.
func CleanForVoice(text string) string {
	for _, r := range voiceRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}

// VoiceReplyLimit is the longest reply spoken in one turn.
const VoiceReplyLimit = 600

// ContinuePrompt follows a truncated voice reply.
const ContinuePrompt = "... Would you like me to continue, or do you have another question?"

// TruncateForVoice cuts text to VoiceReplyLimit characters and appends
// ContinuePrompt when anything was dropped.
func TruncateForVoice(text string) string {
	if utf8.RuneCountInString(text) <= VoiceReplyLimit {
		return text
	}
	return string([]rune(text)[:VoiceReplyLimit]) + ContinuePrompt
}
