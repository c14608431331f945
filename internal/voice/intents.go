package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	loginIntent    = regexp.MustCompile(`\b(login|log in|sign in|registered|my account)\b`)
	transferIntent = regexp.MustCompile(`\b(talk to someone|talk to a person|speak to someone|human|agent|operator|receptionist|transfer|connect me|real person|staff)\b`)
	hangupIntent   = regexp.MustCompile(`\b(goodbye|bye|hang up|end call|that's all)\b`)
)

// Intent is a recognized special request in main_loop.
type Intent int

const (
	NoIntent Intent = iota
	LoginIntent
	TransferIntent
	HangupIntent
)

// Classify matches a main_loop turn against the special intents, in the
// order login, transfer, hangup. Keypad "1" is a login request.
func Classify(speech, digits string) Intent {
	if strings.TrimSpace(digits) == "1" {
		return LoginIntent
	}
	text := strings.ToLower(strings.ReplaceAll(speech, "’", "'"))
	switch {
	case loginIntent.MatchString(text):
		return LoginIntent
	case transferIntent.MatchString(text):
		return TransferIntent
	case hangupIntent.MatchString(text):
		return HangupIntent
	}
	return NoIntent
}

var spokenDigits = map[string]byte{
	"zero": '0', "oh": '0', "o": '0',
	"one": '1', "two": '2', "three": '3', "four": '4', "five": '5',
	"six": '6', "seven": '7', "eight": '8', "nine": '9',
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SpokenDigits converts digit words to digits, honoring "double" and
// "triple" prefixes. Numerals pass through and other words are ignored.
func SpokenDigits(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for i := 0; i < len(words); i++ {
		w := words[i]
		repeat := 0
		switch w {
		case "double":
			repeat = 2
		case "triple":
			repeat = 3
		}
		if repeat > 0 && i+1 < len(words) {
			if d, ok := spokenDigits[words[i+1]]; ok {
				b.WriteString(strings.Repeat(string(d), repeat))
				i++
				continue
			}
		}
		if d, ok := spokenDigits[w]; ok {
			b.WriteByte(d)
			continue
		}
		b.WriteString(onlyDigits(w))
	}
	return b.String()
}

// ExtractPhoneNumber recovers a 10-digit national number from a calling
// number ("+919876543210") or a spoken one ("nine eight seven double six").
// The result may have any length when nothing usable was heard.
func ExtractPhoneNumber(text string) string {
	digits := onlyDigits(text)
	if len(digits) == 10 {
		return digits
	}
	if len(digits) == 12 && strings.HasPrefix(digits, "91") {
		return digits[2:]
	}
	spoken := SpokenDigits(text)
	if len(spoken) == 10 {
		return spoken
	}
	if len(spoken) == 12 && strings.HasPrefix(spoken, "91") {
		return spoken[2:]
	}
	if len(digits) >= 10 {
		return digits
	}
	return spoken
}
